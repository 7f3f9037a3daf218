// Package novel defines data shared by every stage of the conversion pipeline.
package novel

import (
	"fmt"

	"golang.org/x/net/html"
)

// Metadata describes publication as a whole. It is produced once per run and
// never changed afterwards, overrides produce derived copies.
type Metadata struct {
	SourceURI    string
	Title        string
	Author       string
	ChapterCount int
}

// WithTitle returns copy of metadata with title replaced.
func (m Metadata) WithTitle(title string) Metadata {
	m.Title = title
	return m
}

// Valid checks metadata invariants.
func (m Metadata) Valid() error {
	if m.ChapterCount < 0 {
		return fmt.Errorf("negative chapter count %d", m.ChapterCount)
	}
	return nil
}

func (m Metadata) String() string {
	return fmt.Sprintf("%q by %q (%d chapters) from %s", m.Title, m.Author, m.ChapterCount, m.SourceURI)
}

// Chapter is a single fetched chapter. Index is assigned by the source and is
// the only ordering key down the pipeline. Content belongs to the chapter and
// is never modified in place.
type Chapter struct {
	Index     int
	SourceURI string
	Title     string
	Content   *html.Node
}

// Image is an image embedded in a chapter and stored in the archive.
type Image struct {
	ID          string
	Path        string
	ContentType string
	Data        []byte
}
