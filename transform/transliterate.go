package transform

import (
	"strings"
	"sync"
	"unicode"

	"github.com/gosimple/slug"
)

// slug.Lowercase is package level setting and chapters are transformed
// concurrently.
var slugMu sync.Mutex

// Transliterate converts non-ASCII characters to their ASCII equivalents
// while preserving spaces and original capitalization.
// For example: "Война и мир" -> "Voina i mir"
func Transliterate(s string) string {
	words := strings.Fields(s)

	slugMu.Lock()
	defer slugMu.Unlock()

	saved := slug.Lowercase
	slug.Lowercase = false
	defer func() { slug.Lowercase = saved }()

	for i, word := range words {
		words[i] = transliterateWord(word)
	}
	return strings.Join(words, " ")
}

// transliterateWord transliterates a single word preserving its capitalization pattern.
func transliterateWord(word string) string {
	runes := []rune(word)
	firstUpper := unicode.IsUpper(runes[0])
	allUpper := isAllUpper(runes)

	trans := slug.Make(word)
	if trans == "" {
		return word
	}

	transRunes := []rune(trans)
	switch {
	case allUpper:
		for i := range transRunes {
			transRunes[i] = unicode.ToUpper(transRunes[i])
		}
	case firstUpper:
		transRunes[0] = unicode.ToUpper(transRunes[0])
	}
	return string(transRunes)
}

func isAllUpper(runes []rune) bool {
	hasLetter := false
	for _, r := range runes {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
