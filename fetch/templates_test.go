package fetch

import (
	"path/filepath"
	"testing"

	"wte/config"
	"wte/novel"
	"wte/shelf"
)

func testValues() Values {
	meta := novel.Metadata{
		SourceURI:    "https://example.com/fiction/1234",
		Title:        "Мир и Война",
		Author:       "Some Author",
		ChapterCount: 40,
	}
	return newValues(meta, shelf.Story{ID: 1234, Handle: "mw"}, "10", "12", 9, 11)
}

func TestBookTitle(t *testing.T) {
	log := setupTestLogger(t)

	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr bool
	}{
		{"default", "", "Мир и Война: Chpts. 10 - 12", false},
		{"values", "{{ .Title }} [{{ .Start }}-{{ .End }} of {{ .Total }}] by {{ .Author }}", "Мир и Война [10-12 of 40] by Some Author", false},
		{"sprig", `{{ .Handle | upper }} {{ printf "%03d" .Start }}`, "MW 010", false},
		{"context", "{{ .Context }}", string(config.TitleTemplateFieldName), false},
		{"empty result", "  {{ if false }}x{{ end }} ", "Мир и Война", false},
		{"bad template", "{{ .Title ", "", true},
		{"unknown field", "{{ .Series }}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bookTitle(tt.tmpl, testValues(), log)
			if (err != nil) != tt.wantErr {
				t.Fatalf("bookTitle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("bookTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name          string
		dest          string
		tracked       bool
		tmpl          string
		transliterate bool
		want          string
	}{
		{"file", filepath.Join(dir, "book.EPUB"), false, "", false, filepath.Join(dir, "book.EPUB")},
		{"tracked", dir, true, "", false, filepath.Join(dir, "mw_10_12.epub")},
		{"untracked", dir, false, "", false, filepath.Join(dir, "Мир_и_Война_10_12.epub")},
		{"transliterated", dir, false, "", true, filepath.Join(dir, "Mir_i_Voina_10_12.epub")},
		{"template", dir, true, "{{ .ID }}/{{ .First }}-{{ .Last }}", false, filepath.Join(dir, "123410-12.epub")},
		{"empty template", dir, true, "{{ if false }}x{{ end }}", false, filepath.Join(dir, "mw_10_12.epub")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.DocumentConfig{
				SlugLength:            25,
				OutputNameTemplate:    tt.tmpl,
				FileNameTransliterate: tt.transliterate,
			}
			got, err := outputPath(tt.dest, testValues(), tt.tracked, cfg)
			if err != nil {
				t.Fatalf("outputPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("outputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
