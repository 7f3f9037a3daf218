package novel

import "testing"

func TestMetadata_WithTitle(t *testing.T) {
	orig := Metadata{SourceURI: "https://example.com/fiction/1", Title: "Original", Author: "A", ChapterCount: 3}

	derived := orig.WithTitle("Override")

	if orig.Title != "Original" {
		t.Errorf("original title changed to %q", orig.Title)
	}
	if derived.Title != "Override" {
		t.Errorf("derived title = %q, want Override", derived.Title)
	}
	if derived.SourceURI != orig.SourceURI || derived.Author != orig.Author || derived.ChapterCount != orig.ChapterCount {
		t.Error("derived copy lost other fields")
	}
}

func TestMetadata_Valid(t *testing.T) {
	tests := []struct {
		count   int
		wantErr bool
	}{
		{0, false},
		{10, false},
		{-1, true},
	}
	for _, tt := range tests {
		err := Metadata{ChapterCount: tt.count}.Valid()
		if (err != nil) != tt.wantErr {
			t.Errorf("Valid() with count %d error = %v, wantErr %v", tt.count, err, tt.wantErr)
		}
	}
}
