package config

import (
	"strings"
	"unicode/utf8"
)

// maxFileNameBytes is what most file systems allow for a single path element,
// leaving some room for extensions.
const maxFileNameBytes = 240

func trimFileName(in string) string {
	out := strings.TrimSpace(in)
	for len(out) > maxFileNameBytes {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
