package domain

import "time"

// Tier is the age band a user falls into. It governs content gating,
// reply shaping, and retention downstream.
type Tier string

const (
	TierChild Tier = "child"
	TierTeen  Tier = "teen"
	TierAdult Tier = "adult"
)

// DefaultTier applies to profiles created before age verification.
// An unverified profile never reaches the model because of the date-of-birth
// gate, so the default only governs recall and retention until a birth date
// is accepted; teen is the conservative middle ground.
const DefaultTier = TierTeen

// Valid reports whether the tier is one of the three known bands.
func (t Tier) Valid() bool {
	switch t {
	case TierChild, TierTeen, TierAdult:
		return true
	}
	return false
}

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserProfile is the per-user record behind the one-time date-of-birth gate.
type UserProfile struct {
	UserID          string     `json:"userId"`
	BirthDate       *time.Time `json:"-"`
	Tier            Tier       `json:"tier"`
	Verified        bool       `json:"verified"`
	GuardianConsent bool       `json:"guardianConsent"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ConversationEntry is one stored turn of a conversation.
// Redactions records which sanitizer rules fired before the text was written.
type ConversationEntry struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Role        Role           `json:"role"`
	Text        string         `json:"text"`
	TierAtWrite Tier           `json:"tierAtWrite"`
	Redactions  map[string]int `json:"redactions,omitempty"`
	CreatedAt   time.Time      `json:"timestamp"`
}

// ChatResult is the structured outcome of one chat turn. Every flow,
// including policy refusals and model failures, produces one.
type ChatResult struct {
	Reply            string `json:"reply,omitempty"`
	Tier             Tier   `json:"tier,omitempty"`
	Stored           bool   `json:"stored"`
	NeedsDateOfBirth bool   `json:"needsDateOfBirth,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
}
