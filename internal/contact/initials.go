package contact

import (
	"strings"
	"unicode/utf8"
)

// InitialsPlaceholder is shown on an avatar when the name has no tokens.
const InitialsPlaceholder = "?"

// Initials concatenates the first rune of each whitespace-separated token of
// name: "Александра Петрова" -> "АП".
func Initials(name string) string {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return InitialsPlaceholder
	}

	var b strings.Builder
	for _, t := range tokens {
		r, _ := utf8.DecodeRuneInString(t)
		b.WriteRune(r)
	}
	return b.String()
}
