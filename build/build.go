// Package build drives conversion of a chapter range: chapters are fetched
// and transformed concurrently, added to the archive one at a time and
// archive is finalized when every chapter task has finished.
package build

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wte/epub"
	"wte/novel"
	"wte/source"
	"wte/transform"
)

// RangeError is returned when requested chapter range does not fit the
// publication. Nothing is fetched in this case.
type RangeError struct {
	Start, End, Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("bad chapter range [%d, %d] for publication with %d chapters", e.Start, e.End, e.Count)
}

// ChapterFailure describes chapter which could not be fetched or
// transformed. Such chapters are left out of the archive.
type ChapterFailure struct {
	Index int
	Err   error
}

func (f ChapterFailure) Error() string {
	return fmt.Sprintf("chapter %d: %v", f.Index, f.Err)
}

func (f ChapterFailure) Unwrap() error {
	return f.Err
}

type ImageStats struct {
	Added   int
	Dropped int
}

// Result summarizes completed run.
type Result struct {
	Requested int
	// indexes of chapters in the archive, sorted
	Added []int
	// sorted by chapter index
	Failed []ChapterFailure
	Images ImageStats
	Cover  bool
}

// Err combines all chapter failures, nil when every chapter was added.
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f)
	}
	return err
}

// Builder runs conversion pipeline for a single publication.
type Builder struct {
	src     source.Source
	tr      *transform.Transformer
	workers int
	log     *zap.Logger
}

// New creates builder. At most workers chapters are processed at the same
// time, 0 means no limit.
func New(src source.Source, tr *transform.Transformer, workers int, log *zap.Logger) *Builder {
	return &Builder{
		src:     src,
		tr:      tr,
		workers: workers,
		log:     log.Named("build"),
	}
}

// Run converts chapters [start, end] (0-based, inclusive) into arc. Failing
// chapters are skipped and reported in result. Archive errors stop the run,
// archive is aborted and error is returned. On success archive has been
// finalized.
func (b *Builder) Run(ctx context.Context, meta novel.Metadata, start, end int, arc epub.Archive) (*Result, error) {
	if start < 0 || start > end || end >= meta.ChapterCount {
		return nil, &RangeError{Start: start, End: end, Count: meta.ChapterCount}
	}

	began := time.Now()
	res := &Result{Requested: end - start + 1}

	b.log.Info("Building",
		zap.String("title", meta.Title),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("workers", b.workers))

	// guards archive and result
	var mu sync.Mutex

	if err := b.cover(ctx, arc, res); err != nil {
		return nil, b.abort(arc, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}
	for index := start; index <= end; index++ {
		// archive failure cancels group context, do not start anything new
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return b.chapter(gctx, index, arc, &mu, res)
		})
	}

	// all tasks must finish before archive could be touched again
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, b.abort(arc, err)
	}

	slices.Sort(res.Added)
	slices.SortFunc(res.Failed, func(a, b ChapterFailure) int { return cmp.Compare(a.Index, b.Index) })

	if len(res.Added) == 0 {
		b.log.Warn("No chapters could be fetched, archive will be empty")
	}
	if err := arc.Finalize(); err != nil {
		return nil, fmt.Errorf("unable to finalize archive: %w", err)
	}

	b.log.Info("Build completed",
		zap.Int("requested", res.Requested),
		zap.Int("added", len(res.Added)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("images", res.Images.Added),
		zap.Int("images dropped", res.Images.Dropped),
		zap.Bool("cover", res.Cover),
		zap.Duration("elapsed", time.Since(began)))
	return res, nil
}

// cover adds publication cover to the archive. Missing or broken cover is
// not an error, book is produced without it.
func (b *Builder) cover(ctx context.Context, arc epub.Archive, res *Result) error {
	data, err := b.src.FetchCoverImage(ctx)
	if err != nil {
		b.log.Warn("Unable to fetch cover, continuing without it", zap.Error(err))
		return nil
	}
	if data == nil {
		b.log.Debug("Publication has no cover")
		return nil
	}
	cover, err := b.tr.Cover(data)
	if err != nil {
		b.log.Warn("Unable to use cover, continuing without it", zap.Error(err))
		return nil
	}
	if err := arc.AddCover(cover); err != nil {
		return fmt.Errorf("unable to add cover: %w", err)
	}
	res.Cover = true
	return nil
}

// chapter is a single task. Only archive failures are returned, everything
// else is recorded in result.
func (b *Builder) chapter(ctx context.Context, index int, arc epub.Archive, mu *sync.Mutex, res *Result) error {
	fail := func(err error) error {
		b.log.Warn("Chapter skipped", zap.Int("index", index), zap.Error(err))
		mu.Lock()
		defer mu.Unlock()
		res.Failed = append(res.Failed, ChapterFailure{Index: index, Err: err})
		return nil
	}

	ch, err := b.src.FetchChapter(ctx, index)
	if err != nil {
		return fail(err)
	}
	if ch == nil {
		return fail(errors.New("source returned no chapter"))
	}
	if ch.Index != index {
		return fail(fmt.Errorf("source returned chapter %d instead", ch.Index))
	}

	doc, err := b.tr.Chapter(ctx, ch)
	if err != nil {
		return fail(err)
	}

	mu.Lock()
	defer mu.Unlock()

	if err := arc.AddChapter(doc); err != nil {
		return fmt.Errorf("unable to add chapter %d: %w", index, err)
	}
	res.Added = append(res.Added, index)
	res.Images.Added += len(doc.Images)
	res.Images.Dropped += doc.Dropped

	b.log.Debug("Chapter added", zap.Int("index", index), zap.String("title", ch.Title), zap.Int("images", len(doc.Images)))
	return nil
}

func (b *Builder) abort(arc epub.Archive, err error) error {
	if aerr := arc.Abort(); aerr != nil {
		b.log.Warn("Unable to abort archive", zap.Error(aerr))
		err = multierr.Append(err, aerr)
	}
	return err
}
