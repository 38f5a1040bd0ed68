package clarify

import (
	"strings"
	"unicode"
)

// NormalizeQuestion reduces question text for deduplication: lowercase,
// collapse whitespace, strip punctuation. Two questions that normalize
// equal are never both asked within one session.
func NormalizeQuestion(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
