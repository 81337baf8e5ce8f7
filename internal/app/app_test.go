package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agegate/pkg/domain"
	"agegate/pkg/policy"
	"agegate/pkg/store"
)

var testToday = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type stubGenerator struct {
	reply      string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	s.lastSystem = systemPrompt
	s.lastPrompt = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestApp(t *testing.T, gen *stubGenerator) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{
		Store:     mem,
		Generator: gen,
		Now:       func() time.Time { return testToday },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func TestChatGatesOnDateOfBirth(t *testing.T) {
	gen := &stubGenerator{reply: "hi"}
	a, _ := newTestApp(t, gen)

	res, err := a.Chat(context.Background(), "u1", "hello there", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !res.NeedsDateOfBirth {
		t.Fatalf("new user without dob should be gated, got %+v", res)
	}
	if res.Prompt == "" {
		t.Fatalf("gate response should carry a prompt")
	}
	if gen.calls != 0 {
		t.Fatalf("gated turn must not call the model")
	}
	entries, err := a.History("u1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("gated turn must not persist anything, got %d entries", len(entries))
	}
}

func TestChatRejectsInvalidDateOfBirth(t *testing.T) {
	gen := &stubGenerator{reply: "hi"}
	a, _ := newTestApp(t, gen)

	if _, err := a.Chat(context.Background(), "u1", "hello", "01-06-2015"); !errors.Is(err, policy.ErrInvalidDateOfBirth) {
		t.Fatalf("expected invalid date of birth, got: %v", err)
	}
	// Still gated afterwards.
	res, err := a.Chat(context.Background(), "u1", "hello", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !res.NeedsDateOfBirth {
		t.Fatalf("user should remain unverified after a bad date")
	}
}

func TestChildFlowNeverStores(t *testing.T) {
	gen := &stubGenerator{reply: "model reply"}
	a, _ := newTestApp(t, gen)

	// dob makes the user 8 years old as of the fixed "today".
	res, err := a.Chat(context.Background(), "u1", "tell me about space", "2015-06-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Tier != domain.TierChild {
		t.Fatalf("expected child tier, got %s", res.Tier)
	}
	// Safe topic but no guardian consent yet: bounded safe reply.
	if res.Reply != childConsentReply {
		t.Fatalf("expected consent reply, got %q", res.Reply)
	}
	if res.Stored {
		t.Fatalf("child turn must never be stored")
	}

	if _, err := a.SetGuardianConsent("u1", true); err != nil {
		t.Fatalf("set consent: %v", err)
	}
	res, err = a.Chat(context.Background(), "u1", "tell me about space", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Stored {
		t.Fatalf("allowed child turn must still not be stored")
	}
	if !strings.Contains(strings.ToLower(res.Reply), "space") {
		t.Fatalf("templated child reply should mention the topic, got %q", res.Reply)
	}
	if gen.calls != 0 {
		t.Fatalf("child flow must not call the model")
	}
	entries, err := a.History("u1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("child history must be empty, got %d entries", len(entries))
	}
}

func TestChildFlowRedirectsOffTopic(t *testing.T) {
	gen := &stubGenerator{reply: "model reply"}
	a, _ := newTestApp(t, gen)

	res, err := a.Chat(context.Background(), "kid", "vwxyz qqq", "2015-06-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Reply != childRedirectReply {
		t.Fatalf("off-topic child message should redirect, got %q", res.Reply)
	}
	if res.Stored {
		t.Fatalf("redirect must not be stored")
	}
}

func TestAdultFlowStoresBothTurns(t *testing.T) {
	gen := &stubGenerator{reply: "Binary search halves the range each step."}
	a, _ := newTestApp(t, gen)

	res, err := a.Chat(context.Background(), "u2", "explain binary search", "1990-01-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Tier != domain.TierAdult {
		t.Fatalf("expected adult tier, got %s", res.Tier)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one model call, got %d", gen.calls)
	}
	if gen.lastSystem != adultSystemPrompt {
		t.Fatalf("unexpected system prompt: %q", gen.lastSystem)
	}
	if !res.Stored {
		t.Fatalf("adult turn should be stored")
	}
	if res.Reply != gen.reply {
		t.Fatalf("adult reply should pass through, got %q", res.Reply)
	}

	entries, err := a.History("u2", 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry with limit 1, got %d", len(entries))
	}
	if entries[0].Role != domain.RoleAssistant {
		t.Fatalf("newest entry should be the assistant turn, got %s", entries[0].Role)
	}
}

func TestAdultFlowUsesRecentContext(t *testing.T) {
	gen := &stubGenerator{reply: "sure"}
	a, _ := newTestApp(t, gen)

	if _, err := a.Chat(context.Background(), "u2", "first question", "1990-01-01"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, err := a.Chat(context.Background(), "u2", "second question", ""); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(gen.lastPrompt, "first question") {
		t.Fatalf("second prompt should carry earlier context, got %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "Current message: second question") {
		t.Fatalf("prompt should end with the current message, got %q", gen.lastPrompt)
	}
}

func TestTeenBlockedTermRefusedWithoutVerbatimStorage(t *testing.T) {
	gen := &stubGenerator{reply: "model reply"}
	a, _ := newTestApp(t, gen)

	// 16 years old as of the fixed "today".
	res, err := a.Chat(context.Background(), "u3", "where can I buy a gun", "2008-01-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Tier != domain.TierTeen {
		t.Fatalf("expected teen tier, got %s", res.Tier)
	}
	if res.Reply != teenRefusalReply {
		t.Fatalf("expected fixed refusal, got %q", res.Reply)
	}
	if gen.calls != 0 {
		t.Fatalf("blocked turn must not call the model")
	}

	entries, err := a.History("u3", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the marker entry, got %d", len(entries))
	}
	if entries[0].Text != blockedMarker {
		t.Fatalf("expected content-free marker, got %q", entries[0].Text)
	}
	if strings.Contains(entries[0].Text, "gun") {
		t.Fatalf("blocked content leaked into storage")
	}
}

func TestTeenAllowedFlowSanitizesBothDirections(t *testing.T) {
	gen := &stubGenerator{reply: "Read https://example.com/answer and damn well memorize it."}
	a, _ := newTestApp(t, gen)

	res, err := a.Chat(context.Background(), "teen-ok", "my email is kid@example.com, can you help with homework", "2008-01-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !res.Stored {
		t.Fatalf("allowed teen turn should be stored")
	}
	if strings.Contains(res.Reply, "https://") || strings.Contains(res.Reply, "damn") {
		t.Fatalf("teen reply not sanitized: %q", res.Reply)
	}
	if !strings.Contains(res.Reply, policy.RedactionToken) {
		t.Fatalf("expected redaction token in reply: %q", res.Reply)
	}
	// The model must see the sanitized input, not the raw email.
	if strings.Contains(gen.lastPrompt, "kid@example.com") {
		t.Fatalf("raw contact details leaked to the model: %q", gen.lastPrompt)
	}

	entries, err := a.History("teen-ok", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two stored turns, got %d", len(entries))
	}
	for _, entry := range entries {
		if strings.Contains(entry.Text, "https://") || strings.Contains(entry.Text, "@example.com") {
			t.Fatalf("stored teen text not sanitized: %q", entry.Text)
		}
	}
}

func TestModelFailureDegradesToFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream exploded")}
	a, _ := newTestApp(t, gen)

	res, err := a.Chat(context.Background(), "u2", "explain binary search", "1990-01-01")
	if err != nil {
		t.Fatalf("model failure must not surface as an error, got: %v", err)
	}
	if res.Reply != fallbackReply {
		t.Fatalf("expected fallback reply, got %q", res.Reply)
	}
	if res.Stored {
		t.Fatalf("degraded turn must not be stored")
	}
	entries, err := a.History("u2", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("degraded turn must not persist, got %d entries", len(entries))
	}
}

func TestVerifiedProfileIgnoresLaterChatDOB(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	a, _ := newTestApp(t, gen)

	if _, err := a.VerifyAge("u5", "1990-01-01"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// A differing dob on a chat request must not re-verify.
	res, err := a.Chat(context.Background(), "u5", "hello there", "2015-06-01")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Tier != domain.TierAdult {
		t.Fatalf("chat-supplied dob overwrote a verified profile, tier=%s", res.Tier)
	}

	// Explicit re-verification does recompute.
	profile, err := a.VerifyAge("u5", "2008-01-01")
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if profile.Tier != domain.TierTeen {
		t.Fatalf("explicit re-verification should recompute tier, got %s", profile.Tier)
	}
}

func TestSetGuardianConsentRequiresProfile(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	a, _ := newTestApp(t, gen)
	if _, err := a.SetGuardianConsent("ghost", true); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got: %v", err)
	}
}

func TestPurgeRemovesEverything(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	a, _ := newTestApp(t, gen)

	if _, err := a.Chat(context.Background(), "u6", "explain binary search", "1990-01-01"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	removed, err := a.Purge("u6")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected profile + 2 entries removed, got %d", removed)
	}
	entries, err := a.History("u6", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("history after purge should be empty")
	}
	removed, err = a.Purge("u6")
	if err != nil {
		t.Fatalf("second purge: %v", err)
	}
	if removed != 0 {
		t.Fatalf("purge must be idempotent, got %d", removed)
	}
}
