package fetch

import (
	"regexp"
)

// Tried in order, more general patterns go last.
var chapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Chapter (?P<x>[^:]+):`),
	regexp.MustCompile(`Chapter (?P<x>[^–-]+) [–-]`),
	regexp.MustCompile(`Chapter (?P<x>\d+)`),
	regexp.MustCompile(`^(?P<x>\d+)[:.,]`),
	regexp.MustCompile(`(?P<x>\d+)`),
}

// chapterDesignation extracts short chapter designation (usually its number)
// from chapter title. Title is returned as is when nothing matches.
func chapterDesignation(title string) string {
	for _, re := range chapterPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			return m[re.SubexpIndex("x")]
		}
	}
	return title
}

// chapterInfo is default book title decoration describing included
// chapters.
func chapterInfo(first, last string) string {
	switch {
	case len(first) > 0 && len(last) > 0 && first == last:
		return ": Chpts. " + last
	case len(first) > 0 && len(last) > 0:
		return ": Chpts. " + first + " - " + last
	case len(last) > 0:
		return " (" + last + ")"
	}
	return ""
}
