package policy

import (
	"regexp"
	"strings"

	"agegate/pkg/domain"
)

// RedactionToken replaces links, contact details, and profanity in
// teen-tier text.
const RedactionToken = "[removed]"

// Per-tier character budgets for stored and returned text.
const (
	AdultMaxChars = 1200
	TeenMaxChars  = 600
	ChildMaxChars = 350
)

// childFooter is appended to every child-tier reply.
const childFooter = "If you want to learn more, ask a parent or teacher to explore with you!"

var (
	urlPattern   = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d().\s-]{7,}\d`)
	// Punctuation that complicates reading for young users.
	childPunct = regexp.MustCompile(`[;:(){}\[\]"*_~|]`)
	spaceRuns  = regexp.MustCompile(`\s+`)
)

// Sanitizer applies each tier's text safety contract. All transforms are
// pure; the same input always yields the same output for a given tier.
type Sanitizer struct {
	profanity *regexp.Regexp
	synonyms  []synonymRule
}

type synonymRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewSanitizer compiles the rule set's term lists.
func NewSanitizer(rules Rules) *Sanitizer {
	s := &Sanitizer{}
	if terms := lowerAll(rules.ProfaneTerms); len(terms) > 0 {
		quoted := make([]string, 0, len(terms))
		for _, term := range terms {
			quoted = append(quoted, regexp.QuoteMeta(term))
		}
		s.profanity = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	for word, simpler := range rules.Synonyms {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		s.synonyms = append(s.synonyms, synonymRule{
			pattern:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`),
			replacement: simpler,
		})
	}
	return s
}

// Transform returns the tier-appropriate form of text plus a count of the
// rules that fired. Adult text is only length-capped; teen text has links,
// contact details, and profanity redacted before capping; child text is
// reshaped for reading (simpler words, short sentences, guidance footer).
func (s *Sanitizer) Transform(tier domain.Tier, text string) (string, map[string]int) {
	switch tier {
	case domain.TierAdult:
		redactions := map[string]int{}
		out, truncated := truncateRunes(text, AdultMaxChars)
		if truncated {
			redactions["truncated"] = 1
		}
		return out, redactions
	case domain.TierChild:
		return s.childReshape(text)
	default:
		// Teen contract is the conservative fallback for unknown tiers.
		return s.teenRedact(text)
	}
}

func (s *Sanitizer) teenRedact(text string) (string, map[string]int) {
	redactions := map[string]int{}
	count := func(name string, pattern *regexp.Regexp, in string) string {
		if pattern == nil {
			return in
		}
		matches := len(pattern.FindAllStringIndex(in, -1))
		if matches == 0 {
			return in
		}
		redactions[name] = matches
		return pattern.ReplaceAllString(in, RedactionToken)
	}
	out := count("url", urlPattern, text)
	out = count("email", emailPattern, out)
	out = count("phone", phonePattern, out)
	out = count("profanity", s.profanity, out)
	out, truncated := truncateRunes(out, TeenMaxChars)
	if truncated {
		redactions["truncated"] = 1
	}
	return out, redactions
}

// childReshape simplifies vocabulary, strips punctuation that complicates
// reading, splits text into short sentences, caps the length, and appends
// the fixed guidance footer.
func (s *Sanitizer) childReshape(text string) (string, map[string]int) {
	redactions := map[string]int{}
	out := text
	for _, rule := range s.synonyms {
		if matches := len(rule.pattern.FindAllStringIndex(out, -1)); matches > 0 {
			redactions["simplified"] += matches
			out = rule.pattern.ReplaceAllString(out, rule.replacement)
		}
	}
	out = childPunct.ReplaceAllString(out, " ")
	out = spaceRuns.ReplaceAllString(out, " ")

	sentences := splitSentences(out)
	out = strings.Join(sentences, ". ")
	if out != "" && !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") && !strings.HasSuffix(out, "?") {
		out += "."
	}

	out, truncated := truncateRunes(out, ChildMaxChars)
	if truncated {
		redactions["truncated"] = 1
	}
	if out == "" {
		out = childFooter
	} else {
		out += " " + childFooter
	}
	return out, redactions
}

// ChildReply produces the local templated child-tier reply for an allowed
// safe topic; no model call is involved.
func (s *Sanitizer) ChildReply(topic string) string {
	topic = strings.TrimSpace(strings.ToLower(topic))
	if topic == "" {
		topic = "that"
	}
	body := "What a great question about " + topic + "! " +
		"It is a fun thing to be curious about. " +
		"A library book or a teacher can show you even more about " + topic + "."
	out, _ := s.childReshape(body)
	return out
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}

// truncateRunes caps text at max runes, marking the cut with an ellipsis.
func truncateRunes(text string, max int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	return string(runes[:max-1]) + "…", true
}
