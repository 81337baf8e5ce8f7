package policy

import (
	"strings"

	"agegate/pkg/domain"
)

// Decision is the content guard's verdict for one message.
type Decision int

const (
	// Allow lets the message proceed to the model flow.
	Allow Decision = iota
	// Block refuses the message; the orchestrator returns a fixed reply.
	Block
	// RequireConsent means the child message matched a safe topic but the
	// profile lacks guardian consent; a bounded safe reply is returned and
	// nothing else happens.
	RequireConsent
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Block:
		return "block"
	case RequireConsent:
		return "require_consent"
	default:
		return "unknown"
	}
}

// Guard classifies message text against the tier's term lists.
// Teen and adult use a block-list; child uses an allow-list, so unknown
// content defaults to refusal for the tier with the least tolerance for
// error. Pure; the orchestrator decides what each outcome means.
type Guard struct {
	blocked    []string
	safeTopics []string
}

// NewGuard builds a guard over the given rules.
func NewGuard(rules Rules) *Guard {
	return &Guard{
		blocked:    lowerAll(rules.BlockedTerms),
		safeTopics: lowerAll(rules.SafeTopics),
	}
}

// Evaluate returns the verdict for text under the given tier.
func (g *Guard) Evaluate(tier domain.Tier, text string, guardianConsent bool) Decision {
	lowered := strings.ToLower(text)
	switch tier {
	case domain.TierAdult:
		return Allow
	case domain.TierTeen:
		for _, term := range g.blocked {
			if strings.Contains(lowered, term) {
				return Block
			}
		}
		return Allow
	case domain.TierChild:
		if g.SafeTopic(text) == "" {
			return Block
		}
		if !guardianConsent {
			return RequireConsent
		}
		return Allow
	default:
		return Block
	}
}

// SafeTopic returns the first child allow-list topic the text mentions,
// or "" when none matches.
func (g *Guard) SafeTopic(text string) string {
	lowered := strings.ToLower(text)
	for _, topic := range g.safeTopics {
		if strings.Contains(lowered, topic) {
			return topic
		}
	}
	return ""
}
