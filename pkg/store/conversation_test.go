package store

import (
	"strings"
	"testing"

	"agegate/pkg/domain"
	"agegate/pkg/policy"
)

func newConversations() (*Conversations, *MemoryStore) {
	mem := NewMemoryStore()
	return NewConversations(mem, policy.NewSanitizer(policy.DefaultRules())), mem
}

func TestAppendNeverStoresChildTurns(t *testing.T) {
	conv, mem := newConversations()
	for _, text := range []string{"tell me about space", "what do animals eat", "why is the sky blue"} {
		stored, err := conv.Append("kid-1", domain.RoleUser, text, domain.TierChild)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if stored {
			t.Fatalf("child-tier append must not store")
		}
	}
	// Nothing reaches the underlying store either.
	raw, err := mem.ListEntries("kid-1", 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected no rows for child tier, found %d", len(raw))
	}
	entries, err := conv.Recall("kid-1", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty recall, got %d entries", len(entries))
	}
}

func TestAppendSanitizesTeenTurns(t *testing.T) {
	conv, mem := newConversations()
	stored, err := conv.Append("teen-1", domain.RoleAssistant,
		"read https://example.com/guide or email help@example.com, damn useful "+strings.Repeat("x", policy.TeenMaxChars),
		domain.TierTeen)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !stored {
		t.Fatalf("teen append should store")
	}
	raw, err := mem.ListEntries("teen-1", 1)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(raw))
	}
	entry := raw[0]
	for _, forbidden := range []string{"http://", "https://", "damn", "@example.com"} {
		if strings.Contains(entry.Text, forbidden) {
			t.Fatalf("stored teen text still contains %q: %q", forbidden, entry.Text)
		}
	}
	if len([]rune(entry.Text)) > policy.TeenMaxChars {
		t.Fatalf("stored teen text exceeds cap: %d", len([]rune(entry.Text)))
	}
	if entry.TierAtWrite != domain.TierTeen {
		t.Fatalf("tier snapshot missing, got %q", entry.TierAtWrite)
	}
	if entry.Redactions["url"] == 0 || entry.Redactions["email"] == 0 || entry.Redactions["profanity"] == 0 {
		t.Fatalf("expected redaction metadata, got %v", entry.Redactions)
	}
}

func TestAppendCapsAdultTurns(t *testing.T) {
	conv, mem := newConversations()
	if _, err := conv.Append("adult-1", domain.RoleUser, strings.Repeat("y", policy.AdultMaxChars+10), domain.TierAdult); err != nil {
		t.Fatalf("append: %v", err)
	}
	raw, _ := mem.ListEntries("adult-1", 1)
	if len(raw) != 1 {
		t.Fatalf("expected one stored entry")
	}
	if len([]rune(raw[0].Text)) > policy.AdultMaxChars {
		t.Fatalf("stored adult text exceeds cap: %d", len([]rune(raw[0].Text)))
	}
}

func TestRecallClampsLimit(t *testing.T) {
	conv, _ := newConversations()
	for i := 0; i < 3; i++ {
		if _, err := conv.Append("adult-2", domain.RoleUser, "hello", domain.TierAdult); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := conv.Recall("adult-2", 0)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(entries) != MinRecall {
		t.Fatalf("limit 0 should clamp to %d, got %d entries", MinRecall, len(entries))
	}
	entries, err = conv.Recall("adult-2", 100000)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected all 3 entries, got %d", len(entries))
	}
}

func TestRecallEmptyForChildTierProfile(t *testing.T) {
	conv, mem := newConversations()
	// History written while the profile was teen.
	if _, err := conv.Append("u-switch", domain.RoleUser, "old message", domain.TierTeen); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Profile later resolves to child; rows still exist underneath.
	if err := mem.SaveProfile(domain.UserProfile{UserID: "u-switch", Tier: domain.TierChild, Verified: true}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	entries, err := conv.Recall("u-switch", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("child-tier profile must recall nothing, got %d entries", len(entries))
	}
}

func TestPurgeIsIdempotent(t *testing.T) {
	conv, mem := newConversations()
	if err := mem.SaveProfile(domain.UserProfile{UserID: "u-p", Tier: domain.TierAdult, Verified: true}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if _, err := conv.Append("u-p", domain.RoleUser, "to be erased", domain.TierAdult); err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := conv.Purge("u-p")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows removed, got %d", removed)
	}
	entries, err := conv.Recall("u-p", 10)
	if err != nil {
		t.Fatalf("recall after purge: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("recall after purge should be empty, got %d", len(entries))
	}
	removed, err = conv.Purge("u-p")
	if err != nil {
		t.Fatalf("second purge: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second purge should remove nothing, got %d", removed)
	}
}
