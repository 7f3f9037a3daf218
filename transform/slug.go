package transform

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	ellipsis = "..."
	// DefaultSlugLength is used when no positive maximum is requested.
	DefaultSlugLength = 25
)

// Slug turns title into a file name friendly form: whitespace becomes "_" and
// everything except letters, digits, "_" and ellipsis markers is dropped. Long
// results keep a prefix and a suffix joined by ellipsis, so titles sharing
// long common prefix remain distinguishable. Result never exceeds max runes
// and Slug(Slug(x)) == Slug(x).
func Slug(title string, max int) string {
	if max <= 0 {
		max = DefaultSlugLength
	}

	runes := []rune(cleanTitle(title))
	if len(runes) <= max {
		return string(runes)
	}

	el := len([]rune(ellipsis))
	if max < el+2 {
		// cut may leave dangling dots behind
		return cleanTitle(string(runes[:max]))
	}
	half := (max - el) / 2
	return string(runes[:half]) + ellipsis + string(runes[len(runes)-half:])
}

// cleanTitle keeps runs of dots at least as long as ellipsis marker, so
// truncated names survive repeated cleaning unchanged.
func cleanTitle(title string) string {
	var b strings.Builder

	runes := []rune(title)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '.':
			j := i
			for j < len(runes) && runes[j] == '.' {
				j++
			}
			if j-i >= len(ellipsis) {
				b.WriteString(string(runes[i:j]))
			}
			i = j
			continue
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
		i++
	}
	return b.String()
}

// ChapterID is manifest id of chapter document.
func ChapterID(index int) string {
	return fmt.Sprintf("xhtml%04d", index)
}

// ChapterPath is location of chapter document relative to content root.
func ChapterPath(index int, title string, max int) string {
	return fmt.Sprintf("Text/%04d_%s.xhtml", index, Slug(title, max))
}

// ImageID is manifest id of image seq embedded in chapter index.
func ImageID(index, seq int) string {
	return fmt.Sprintf("img%04d_%04d", index, seq)
}

// ImagePath is location of embedded image relative to content root.
func ImagePath(index, seq int, title string, max int, ext string) string {
	return fmt.Sprintf("Images/%04d_%04d_%s.%s", index, seq, Slug(title, max), ext)
}
