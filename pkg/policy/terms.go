package policy

import "strings"

// Rules is the single source of truth for every term list the guard and
// sanitizer consult. Defaults live in code; deployments may override any
// list from configuration.
type Rules struct {
	// BlockedTerms refuses teen-tier messages on a case-insensitive
	// substring match.
	BlockedTerms []string
	// SafeTopics is the child-tier allow-list; a child message must contain
	// at least one of these to be processed at all.
	SafeTopics []string
	// ProfaneTerms are replaced with the redaction token before teen-tier
	// text is stored or returned.
	ProfaneTerms []string
	// Synonyms maps vocabulary to simpler replacements for child-tier
	// reply reshaping (word-boundary, case-insensitive).
	Synonyms map[string]string
}

// DefaultRules returns the built-in term lists.
func DefaultRules() Rules {
	return Rules{
		BlockedTerms: []string{
			"suicide", "self-harm", "self harm", "kill myself",
			"porn", "nsfw", "explicit sex",
			"weapon", "firearm", "gun", "explosive",
			"heroin", "cocaine", "meth", "fentanyl",
			"extremist", "terrorism", "radicalization",
			"gambling", "casino", "betting",
		},
		SafeTopics: []string{
			"school", "homework", "math", "science", "space", "planet",
			"history", "geography", "reading", "book", "story",
			"animal", "nature", "weather", "music", "art", "drawing",
			"sport", "cooking", "recipe", "friend", "hobby", "hygiene",
		},
		ProfaneTerms: []string{
			"fuck", "shit", "bitch", "asshole", "bastard", "dickhead", "damn",
		},
		Synonyms: map[string]string{
			"utilize":       "use",
			"approximately": "about",
			"assistance":    "help",
			"demonstrate":   "show",
			"consequently":  "so",
			"numerous":      "many",
			"obtain":        "get",
			"purchase":      "buy",
			"frequently":    "often",
			"difficult":     "hard",
		},
	}
}

// Merge overlays non-empty override lists onto r and returns the result.
// An empty override list keeps the corresponding default.
func (r Rules) Merge(override Rules) Rules {
	if len(override.BlockedTerms) > 0 {
		r.BlockedTerms = override.BlockedTerms
	}
	if len(override.SafeTopics) > 0 {
		r.SafeTopics = override.SafeTopics
	}
	if len(override.ProfaneTerms) > 0 {
		r.ProfaneTerms = override.ProfaneTerms
	}
	if len(override.Synonyms) > 0 {
		r.Synonyms = override.Synonyms
	}
	return r
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}
