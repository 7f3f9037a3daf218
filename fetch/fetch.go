// Package fetch implements story related commands: producing books, showing
// available chapters and maintaining the shelf.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wte/build"
	"wte/config"
	"wte/epub"
	"wte/novel"
	"wte/shelf"
	"wte/source"
	"wte/state"
	"wte/transform"
)

type request struct {
	identifier string
	// 1-based, negative count from the end, nil when not given
	start, end *int
	// overrides configured title template
	title string
	// output file or directory
	dest string
}

func optionalInt(cmd *cli.Command, name string) *int {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.Int(name)
	return &v
}

// Run is "fetch" command action.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("fetch")

	all, bookshelf := cmd.Bool("all"), cmd.String("bookshelf")
	batch := all || len(bookshelf) > 0

	args := cmd.Args().Slice()
	req := request{
		start: optionalInt(cmd, "start"),
		end:   optionalInt(cmd, "end"),
		title: cmd.String("title"),
	}
	switch {
	case all && len(bookshelf) > 0:
		return errors.New("--all and --bookshelf could not be used together")
	case batch && (req.start != nil || req.end != nil || len(req.title) > 0):
		return errors.New("chapter range and title could only be specified for a single story")
	case !batch && len(args) == 0:
		return errors.New("no story has been specified")
	case !batch:
		req.identifier, args = args[0], args[1:]
	}
	if len(args) > 0 {
		req.dest = args[0]
	}
	if len(req.dest) == 0 {
		if req.dest, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if req.dest, err = filepath.Abs(req.dest); err != nil {
		return err
	}
	if len(args) > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", args[1:]))
	}

	env.Overwrite = cmd.Bool("overwrite")
	env.UpdateShelf = !cmd.Bool("keep-last-read")

	what := req.identifier
	switch {
	case all:
		what = "<shelf>"
	case batch:
		what = "<bookshelf " + bookshelf + ">"
	}
	log.Info("Processing starting", zap.String("story", what), zap.String("destination", req.dest))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	if batch {
		return fetchShelf(ctx, env, bookshelf, req.dest, log)
	}
	return fetch(ctx, env, req, log)
}

// session is a story resolved from the shelf with its story page fetched.
type session struct {
	store   *shelf.Store
	entry   shelf.Story
	tracked bool
	src     *source.RoyalRoad
	meta    novel.Metadata
}

func openShelf(env *state.LocalEnv, log *zap.Logger) (*shelf.Store, error) {
	path, err := env.Cfg.Shelf.ShelfPath()
	if err != nil {
		return nil, err
	}
	return shelf.Open(path, log)
}

func openStory(ctx context.Context, env *state.LocalEnv, id int, log *zap.Logger) (*source.RoyalRoad, novel.Metadata, error) {
	client := source.NewHTTPClient(&env.Cfg.Source, env.Rpt, log)
	src, err := source.NewRoyalRoad(ctx, client, env.Cfg.Source.BaseURL, id, log)
	if err != nil {
		return nil, novel.Metadata{}, err
	}
	meta, err := src.FetchMetadata(ctx)
	if err != nil {
		return nil, novel.Metadata{}, err
	}
	return src, meta, nil
}

func openSession(ctx context.Context, env *state.LocalEnv, identifier string, log *zap.Logger) (_ *session, err error) {
	s := &session{}
	if s.store, err = openShelf(env, log); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.store.Close()
		}
	}()

	if s.entry, s.tracked, err = s.store.Resolve(identifier); err != nil {
		return nil, err
	}
	if s.src, s.meta, err = openStory(ctx, env, s.entry.ID, log); err != nil {
		return nil, err
	}
	log.Debug("Story resolved",
		zap.Stringer("entry", s.entry),
		zap.Bool("tracked", s.tracked),
		zap.Stringer("story", s.meta))
	return s, nil
}

func (s *session) close() error {
	return s.store.Close()
}

func (s *session) designation(index int) string {
	title, err := s.src.PeekChapterTitle(index)
	if err != nil {
		return ""
	}
	return chapterDesignation(title)
}

func (s *session) values(start, end int) Values {
	return newValues(s.meta, s.entry, s.designation(start), s.designation(end), start, end)
}

func fetch(ctx context.Context, env *state.LocalEnv, req request, log *zap.Logger) (err error) {
	s, err := openSession(ctx, env, req.identifier, log)
	if err != nil {
		return err
	}
	defer func() {
		if er := s.close(); er != nil && err == nil {
			err = er
		}
	}()
	return s.fetch(ctx, env, req, log)
}

// fetchShelf produces books with unread chapters for every story on the
// shelf or, when bookshelf is not empty, on that bookshelf. Stories which
// fail do not stop the rest, their errors are combined.
func fetchShelf(ctx context.Context, env *state.LocalEnv, bookshelf, dest string, log *zap.Logger) (err error) {
	if strings.EqualFold(filepath.Ext(dest), ".epub") {
		return fmt.Errorf("destination must be a directory when fetching several stories: %s", dest)
	}

	store, err := openShelf(env, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	var stories []shelf.Story
	if len(bookshelf) == 0 {
		stories, err = store.List()
	} else {
		stories, err = store.BookshelfStories(bookshelf)
	}
	if err != nil {
		return err
	}
	if len(stories) == 0 {
		log.Info("No stories to fetch", zap.String("bookshelf", bookshelf))
		return nil
	}

	for _, story := range stories {
		if cerr := ctx.Err(); cerr != nil {
			return multierr.Append(err, cerr)
		}
		s := &session{store: store, entry: story, tracked: true}
		er := func() (er error) {
			if s.src, s.meta, er = openStory(ctx, env, story.ID, log); er != nil {
				return er
			}
			return s.fetch(ctx, env, request{identifier: story.Handle, dest: dest}, log)
		}()
		if er != nil {
			log.Warn("Unable to fetch story", zap.Stringer("entry", story), zap.Error(er))
			err = multierr.Append(err, fmt.Errorf("story %s: %w", story.Handle, er))
		}
	}
	return err
}

// fetch builds book for resolved story.
func (s *session) fetch(ctx context.Context, env *state.LocalEnv, req request, log *zap.Logger) error {
	start, end, err := shelf.ChapterBounds(req.start, req.end, s.entry.LastRead, s.meta.ChapterCount)
	if err != nil {
		return err
	}
	if start > end && req.start == nil && req.end == nil {
		log.Info("Nothing new to fetch", zap.Stringer("entry", s.entry), zap.Int("chapters", s.meta.ChapterCount))
		return nil
	}

	cfg := &env.Cfg.Document
	values := s.values(start, end)

	tmpl := cfg.TitleTemplate
	if len(req.title) > 0 {
		tmpl = req.title
	}
	title, err := bookTitle(tmpl, values, log)
	if err != nil {
		return err
	}
	meta := s.meta.WithTitle(title)

	out, err := outputPath(req.dest, values, s.tracked, cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(out); err == nil && !env.Overwrite {
		return fmt.Errorf("output file already exists: %s", out)
	}

	arc, err := epub.Open(out, meta, cfg, log)
	if err != nil {
		return err
	}
	// no-op when archive was finalized
	defer arc.Abort()

	tr := transform.New(s.src, cfg, log)
	res, err := build.New(s.src, tr, cfg.Workers, log).Run(ctx, meta, start, end, arc)
	if err != nil {
		return err
	}
	for _, f := range res.Failed {
		log.Warn("Chapter is missing from the book", zap.Int("chapter", f.Index+1), zap.Error(f.Err))
	}
	log.Info("Book created",
		zap.String("title", meta.Title),
		zap.String("file", out),
		zap.Int("chapters", len(res.Added)),
		zap.Int("missing", len(res.Failed)))
	env.Rpt.Store("books/"+filepath.Base(out), out)

	if !s.tracked || !env.UpdateShelf {
		return nil
	}
	return s.markRead(end, res, log)
}

// markRead moves last read chapter forward, stopping before the first
// chapter which did not make it into the book.
func (s *session) markRead(end int, res *build.Result, log *zap.Logger) error {
	read := end + 1
	if len(res.Failed) > 0 {
		read = res.Failed[0].Index
	}
	if read <= s.entry.LastRead {
		return nil
	}
	if err := s.store.SetLastRead(s.entry.ID, read); err != nil {
		return err
	}
	log.Info("Shelf updated", zap.String("story", s.entry.Handle), zap.Int("last read", read))
	return nil
}

// bookTitle expands title template. Without template publication title is
// decorated with included chapters.
func bookTitle(tmpl string, values Values, log *zap.Logger) (string, error) {
	if len(tmpl) == 0 {
		return values.Title + chapterInfo(values.First, values.Last), nil
	}
	title, err := expandTemplate(config.TitleTemplateFieldName, tmpl, values)
	if err != nil {
		return "", err
	}
	if title = strings.TrimSpace(title); len(title) == 0 {
		log.Warn("Title template produced empty title, using publication title", zap.String("template", tmpl))
		return values.Title, nil
	}
	return title, nil
}

// outputPath returns book file name. When dest is not an epub file it is
// directory and name is produced from output name template or, without
// one, from shelf handle (slugged title for untracked stories) and chapter
// range.
func outputPath(dest string, values Values, tracked bool, cfg *config.DocumentConfig) (string, error) {
	if strings.EqualFold(filepath.Ext(dest), ".epub") {
		return dest, nil
	}

	var name string
	if len(cfg.OutputNameTemplate) > 0 {
		expanded, err := expandTemplate(config.OutputNameTemplateFieldName, cfg.OutputNameTemplate, values)
		if err != nil {
			return "", err
		}
		name = strings.TrimSpace(expanded)
	}
	if len(name) == 0 {
		base := values.Handle
		if !tracked {
			base = transform.Slug(values.Title, cfg.SlugLength)
		}
		name = fmt.Sprintf("%s_%d_%d", base, values.Start, values.End)
	}
	if cfg.FileNameTransliterate {
		name = transform.Transliterate(name)
	}
	return filepath.Join(dest, config.CleanFileName(name)+".epub"), nil
}
