package cache

import (
	"strings"
	"unicode"
)

// normalize canonicalizes a raw query so semantically identical
// phrasings collide on the same cache key: lower-case, bot mentions
// stripped, whitespace collapsed, edge punctuation removed. It is
// idempotent: normalize(normalize(q)) == normalize(q).
func normalize(raw string, mentions []string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	// Strip leading bot mentions ("@botname question") repeatedly in
	// case the message carries more than one.
	for {
		trimmed := strings.TrimLeftFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || r == '@'
		})
		stripped := trimmed
		for _, m := range mentions {
			m = strings.ToLower(m)
			if m != "" && strings.HasPrefix(stripped, m) {
				stripped = stripped[len(m):]
			}
		}
		if stripped == s {
			break
		}
		s = stripped
	}

	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})

	return strings.Join(strings.Fields(s), " ")
}
