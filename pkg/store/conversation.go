package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"agegate/pkg/domain"
	"agegate/pkg/policy"
)

// Recall limits; caller-supplied limits are clamped into this range.
const (
	MinRecall = 1
	MaxRecall = 200
)

// Conversations is the retention policy layer over a Store. It is the only
// way the rest of the service touches conversation history:
//
//   - child-tier turns are never written, regardless of content
//   - teen-tier text is sanitized before it is written
//   - adult-tier text is length-capped before it is written
//   - recall for a child-tier profile is empty even if rows exist
//     (defense in depth against historical data after a tier change)
type Conversations struct {
	store     Store
	sanitizer *policy.Sanitizer
	now       func() time.Time
}

// NewConversations wires the policy layer over a persistence collaborator.
func NewConversations(store Store, sanitizer *policy.Sanitizer) *Conversations {
	return &Conversations{
		store:     store,
		sanitizer: sanitizer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (c *Conversations) WithClock(now func() time.Time) *Conversations {
	c.now = now
	return c
}

// Append writes one turn under the retention policy. The returned bool
// reports whether anything was stored; child-tier appends never are.
func (c *Conversations) Append(userID string, role domain.Role, text string, tier domain.Tier) (bool, error) {
	if tier == domain.TierChild {
		return false, nil
	}
	sanitized, redactions := c.sanitizer.Transform(tier, text)
	entry := domain.ConversationEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Role:        role,
		Text:        sanitized,
		TierAtWrite: tier,
		Redactions:  redactions,
		CreatedAt:   c.now(),
	}
	if err := c.store.AppendEntry(entry); err != nil {
		return false, fmt.Errorf("append entry: %w", err)
	}
	return true, nil
}

// Recall returns up to limit entries, newest first. The limit is clamped
// to [MinRecall, MaxRecall]. A child-tier profile always recalls nothing.
func (c *Conversations) Recall(userID string, limit int) ([]domain.ConversationEntry, error) {
	if limit < MinRecall {
		limit = MinRecall
	}
	if limit > MaxRecall {
		limit = MaxRecall
	}
	profile, ok, err := c.store.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if ok && profile.Tier == domain.TierChild {
		return []domain.ConversationEntry{}, nil
	}
	entries, err := c.store.ListEntries(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Purge erases the profile and all entries for a user. Idempotent: purging
// an unknown user removes zero rows.
func (c *Conversations) Purge(userID string) (int64, error) {
	removed, err := c.store.DeleteUser(userID)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	return removed, nil
}
