// Package source retrieves serial publications from the sites hosting them.
package source

import (
	"context"
	"errors"

	"wte/novel"
)

// ErrNoChapter is returned when requested chapter index is outside of the
// publication.
var ErrNoChapter = errors.New("no such chapter")

// Source provides publication metadata, chapters and images. All methods
// must be safe for concurrent use.
type Source interface {
	FetchMetadata(ctx context.Context) (novel.Metadata, error)
	// FetchChapter returns chapter by its 0-based index or ErrNoChapter.
	FetchChapter(ctx context.Context, index int) (*novel.Chapter, error)
	// FetchCoverImage returns nil data and no error when publication has no
	// cover.
	FetchCoverImage(ctx context.Context) ([]byte, error)
	// FetchImage returns image data and content type reported by server.
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}
