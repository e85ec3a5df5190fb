package emotion

import (
	"regexp"
	"strings"
)

// Class is the emotional markup class carried by an assistant reply.
type Class string

const (
	ClassPositive Class = "positive"
	ClassCalm     Class = "calm"
	ClassNeutral  Class = "neutral"
)

var (
	boldSpan       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underscoreSpan = regexp.MustCompile(`__(.+?)__`)

	positivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)¡(qué|quién|cómo) (bien|genial|fantástico|increíble|perfecto|maravilloso)`),
		regexp.MustCompile(`(?i)\b(me encanta|me gusta mucho|adoro)\b`),
		regexp.MustCompile(`(?i)\b(feliz|alegre|contento|emocionado|entusiasmado)\b`),
		regexp.MustCompile(`(?i)\b(great|wonderful|fantastic|awesome|amazing)\b`),
	}
	calmPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(tranquilo|calma|respira|paciencia|despacio)\b`),
		regexp.MustCompile(`(?i)\b(está bien|no te preocupes|todo está bien)\b`),
		regexp.MustCompile(`(?i)\b(relájate|descansa|serenidad)\b`),
		regexp.MustCompile(`(?i)\b(calm|relax|breathe|it's okay|don't worry)\b`),
	}
)

// Tag assigns the markup class for a reply. The decision is deterministic and
// idempotent: explicit markup spans win over lexical cues, so re-tagging an
// already-tagged reply yields the same class.
func Tag(text string) Class {
	if boldSpan.MatchString(text) {
		return ClassPositive
	}
	if underscoreSpan.MatchString(text) {
		return ClassCalm
	}
	for _, re := range positivePatterns {
		if re.MatchString(text) {
			return ClassPositive
		}
	}
	for _, re := range calmPatterns {
		if re.MatchString(text) {
			return ClassCalm
		}
	}
	return ClassNeutral
}

// HasMarkup reports whether the text carries at least one markup span.
func HasMarkup(text string) bool {
	return boldSpan.MatchString(text) || underscoreSpan.MatchString(text)
}

// Strip removes emotional markup, leaving plain text for embedding.
func Strip(text string) string {
	out := boldSpan.ReplaceAllString(text, "$1")
	out = underscoreSpan.ReplaceAllString(out, "$1")
	return strings.Join(strings.Fields(out), " ")
}
