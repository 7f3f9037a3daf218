package transform

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		max   int
		want  string
	}{
		{"simple", "Chapter 1", 25, "Chapter_1"},
		{"punctuation", "Chapter 1: The Beginning!", 25, "Chapter_1_The_Beginning"},
		{"unicode letters", "Глава 2", 25, "Глава_2"},
		{"tabs and newlines", "a\tb\nc", 25, "a_b_c"},
		{"empty", "", 25, ""},
		{"only symbols", "?!#", 25, ""},
		{"truncated", "Chapter 123: A Very Long Title Indeed", 25, "Chapter_123...itle_Indeed"},
		{"exact length", strings.Repeat("a", 25), 25, strings.Repeat("a", 25)},
		{"default max", strings.Repeat("b", 30), 0, strings.Repeat("b", 11) + "..." + strings.Repeat("b", 11)},
		{"short dots dropped", "Part 1.5", 25, "Part_15"},
		{"long dots kept", "Wait... what", 25, "Wait..._what"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.title, tt.max); got != tt.want {
				t.Errorf("Slug(%q, %d) = %q, want %q", tt.title, tt.max, got, tt.want)
			}
		})
	}
}

func TestSlug_DistinctLongTitles(t *testing.T) {
	a := Slug("The Wandering Inn Volume 1 Chapter 1.00", 25)
	b := Slug("The Wandering Inn Volume 1 Chapter 1.01", 25)
	if a == b {
		t.Errorf("long titles with common prefix collapsed to %q", a)
	}
}

func TestSlug_Properties(t *testing.T) {
	titles := []string{
		"",
		"Chapter 1",
		"Chapter 512 - The one where everything... happens .. or not . at all",
		"....................................",
		"a..b...c....d.....e",
		"Пролог. Начало истории, которая никогда не закончится",
		"第一章 开始的地方和结束的地方都在这里非常长的标题",
		"tabs\tand\nnewlines   and   spaces   everywhere   in   title",
		"emoji 🚀 rockets 🚀 and more emoji 🚀 to make it long",
		strings.Repeat("x.", 40),
		strings.Repeat(".x..", 20),
	}

	for _, max := range []int{1, 3, 4, 5, 8, 25, 60} {
		for _, title := range titles {
			s := Slug(title, max)

			if n := utf8.RuneCountInString(s); n > max {
				t.Errorf("Slug(%q, %d) = %q has %d runes", title, max, s, n)
			}
			if again := Slug(s, max); again != s {
				t.Errorf("Slug is not idempotent for %q, %d: %q -> %q", title, max, s, again)
			}
			for _, r := range s {
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					t.Errorf("Slug(%q, %d) = %q contains %q", title, max, s, r)
				}
			}
			if strings.ContainsAny(s, " \t\n/\\") {
				t.Errorf("Slug(%q, %d) = %q is not path safe", title, max, s)
			}
		}
	}
}

func TestPaths(t *testing.T) {
	if got := ChapterID(7); got != "xhtml0007" {
		t.Errorf("ChapterID(7) = %q", got)
	}
	if got := ChapterPath(12, "Chapter 13: Fall", 25); got != "Text/0012_Chapter_13_Fall.xhtml" {
		t.Errorf("ChapterPath() = %q", got)
	}
	if got := ImageID(3, 1); got != "img0003_0001" {
		t.Errorf("ImageID(3, 1) = %q", got)
	}
	if got := ImagePath(3, 1, "Map", 25, "png"); got != "Images/0003_0001_Map.png" {
		t.Errorf("ImagePath() = %q", got)
	}
	if ImagePath(1, 0, "Same", 25, "png") == ImagePath(2, 0, "Same", 25, "png") {
		t.Error("image paths of different chapters must differ")
	}
}
