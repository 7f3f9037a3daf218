// Package epub assembles EPUB 2 container from transformed chapters.
package epub

import (
	"archive/zip"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wte/archive"
	"wte/config"
	"wte/misc"
	"wte/novel"
	"wte/transform"
)

const (
	mimetypeContent = "application/epub+zip"
	oebpsDir        = "OEBPS"
	opfName         = "content.opf"
	ncxName         = "toc.ncx"
	coverImageID    = "cover-image"
	coverPageID     = "cover"
	coverPageHref   = "Text/cover.xhtml"
	xhtmlMediaType  = "application/xhtml+xml"
)

//go:embed stylesheet.css
var defaultStylesheet []byte

var errAborted = errors.New("archive has been aborted")

// ManifestEntry is a single item of package manifest. Href is relative to
// package document.
type ManifestEntry struct {
	ID        string
	Href      string
	MediaType string
	InSpine   bool
}

// NavEntry is a single table of contents entry.
type NavEntry struct {
	PlayOrder int
	Label     string
	Href      string
}

// Archive receives results of the pipeline. Implementations are not safe
// for concurrent use, callers serialize access.
type Archive interface {
	AddChapter(res *transform.Result) error
	AddCover(cover *transform.Cover) error
	Finalize() error
	Abort() error
}

// Writer builds archive in a temporary work directory and moves it to its
// destination on Finalize. Entries may be added in any order, manifest,
// spine and navigation are ordered by chapter index when archive is
// finalized.
type Writer struct {
	cfg  *config.DocumentConfig
	log  *zap.Logger
	meta novel.Metadata

	dest    string
	workDir string
	tmpName string
	f       *os.File
	zw      *zip.Writer

	// entries which do not belong to any chapter, in insertion order
	structural []ManifestEntry
	indexed    map[int][]ManifestEntry
	nav        map[int]NavEntry
	ids        map[string]struct{}
	hrefs      map[string]struct{}
	cover      bool

	finalized bool
	aborted   bool
}

var _ Archive = (*Writer)(nil)

// Open creates new archive which will be written to dest. Mimetype,
// container and stylesheet are written immediately.
func Open(dest string, meta novel.Metadata, cfg *config.DocumentConfig, log *zap.Logger) (_ *Writer, err error) {
	if err := meta.Valid(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, &IOError{Path: dest, Op: "create directory for", Err: err}
	}
	workDir, err := os.MkdirTemp("", misc.GetAppName()+"-")
	if err != nil {
		return nil, &IOError{Path: dest, Op: "create work directory for", Err: err}
	}

	w := &Writer{
		cfg:     cfg,
		log:     log.Named("epub"),
		meta:    meta,
		dest:    dest,
		workDir: workDir,
		tmpName: filepath.Join(workDir, filepath.Base(dest)),
		indexed: make(map[int][]ManifestEntry),
		nav:     make(map[int]NavEntry),
		ids:     make(map[string]struct{}),
		hrefs:   make(map[string]struct{}),
	}
	defer func() {
		if err != nil {
			_ = w.cleanup()
		}
	}()

	if w.f, err = os.Create(w.tmpName); err != nil {
		return nil, &IOError{Path: w.tmpName, Op: "create", Err: err}
	}
	w.zw = zip.NewWriter(w.f)

	if err := writeMimetype(w.zw); err != nil {
		return nil, w.ioError(fmt.Errorf("mimetype: %w", err))
	}
	if err := writeContainer(w.zw); err != nil {
		return nil, w.ioError(fmt.Errorf("container: %w", err))
	}

	w.structural = append(w.structural, ManifestEntry{ID: "ncx", Href: ncxName, MediaType: "application/x-dtbncx+xml"})
	if err := w.add(transform.StylesheetPath, defaultStylesheet); err != nil {
		return nil, err
	}
	w.structural = append(w.structural, ManifestEntry{ID: "stylesheet", Href: transform.StylesheetPath, MediaType: "text/css"})

	w.log.Debug("Archive opened", zap.String("file", w.tmpName), zap.String("destination", dest))
	return w, nil
}

// AddChapter stores chapter document and its images. Each chapter index may
// be added only once.
func (w *Writer) AddChapter(res *transform.Result) error {
	if w.finalized {
		panic("epub: AddChapter called after Finalize")
	}
	if w.aborted {
		return errAborted
	}
	if res == nil {
		return errors.New("nil chapter")
	}
	if res.Index < 0 || res.Index >= w.meta.ChapterCount {
		return fmt.Errorf("chapter index %d out of range [0, %d)", res.Index, w.meta.ChapterCount)
	}
	if _, dup := w.nav[res.Index]; dup {
		return fmt.Errorf("chapter %d has already been added", res.Index)
	}

	entries := make([]ManifestEntry, 0, len(res.Images)+1)
	entries = append(entries, ManifestEntry{ID: res.ID, Href: res.Path, MediaType: xhtmlMediaType, InSpine: true})
	for _, img := range res.Images {
		entries = append(entries, ManifestEntry{ID: img.ID, Href: img.Path, MediaType: img.ContentType})
	}
	if err := w.reserve(entries); err != nil {
		return fmt.Errorf("chapter %d: %w", res.Index, err)
	}

	for _, img := range res.Images {
		if err := w.add(img.Path, img.Data); err != nil {
			return err
		}
	}
	if err := w.add(res.Path, res.Document); err != nil {
		return err
	}

	w.indexed[res.Index] = entries
	w.nav[res.Index] = NavEntry{PlayOrder: res.Index + 1, Label: res.Title, Href: res.Path}

	w.log.Debug("Chapter added", zap.Int("index", res.Index), zap.String("file", res.Path), zap.Int("images", len(res.Images)))
	return nil
}

// AddCover stores cover image and cover page. Nil cover is ignored.
func (w *Writer) AddCover(c *transform.Cover) error {
	if w.finalized {
		panic("epub: AddCover called after Finalize")
	}
	if c == nil {
		return nil
	}
	if w.aborted {
		return errAborted
	}
	if w.cover {
		return errors.New("cover has already been added")
	}

	img := ManifestEntry{ID: coverImageID, Href: "Images/cover." + c.Ext, MediaType: c.MediaType}
	page := ManifestEntry{ID: coverPageID, Href: coverPageHref, MediaType: xhtmlMediaType, InSpine: true}
	if err := w.reserve([]ManifestEntry{img, page}); err != nil {
		return fmt.Errorf("cover: %w", err)
	}

	if err := w.add(img.Href, c.Data); err != nil {
		return err
	}
	data, err := xmlBytes(coverPage(w.meta.Title, "../"+img.Href, c, &w.cfg.Cover))
	if err != nil {
		return fmt.Errorf("unable to prepare cover page: %w", err)
	}
	if err := w.add(page.Href, data); err != nil {
		return err
	}

	w.structural = append(w.structural, img, page)
	w.cover = true

	w.log.Debug("Cover added", zap.String("file", img.Href), zap.Int("width", c.Width), zap.Int("height", c.Height))
	return nil
}

// Manifest returns manifest entries in archive order: entries not belonging
// to any chapter in order they were added followed by chapter entries sorted
// by chapter index.
func (w *Writer) Manifest() []ManifestEntry {
	entries := slices.Clone(w.structural)
	for _, idx := range slices.Sorted(maps.Keys(w.indexed)) {
		entries = append(entries, w.indexed[idx]...)
	}
	return entries
}

// Navigation returns table of contents entries sorted by play order.
func (w *Writer) Navigation() []NavEntry {
	nav := slices.Collect(maps.Values(w.nav))
	slices.SortFunc(nav, func(a, b NavEntry) int { return a.PlayOrder - b.PlayOrder })
	return nav
}

// Identifier returns unique book identifier, stable for the same source and
// title.
func (w *Writer) Identifier() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(w.meta.SourceURI+"#"+w.meta.Title)).URN()
}

// Finalize writes package document and table of contents, closes archive and
// moves it to destination. It must be called exactly once, after all
// chapters have been added.
func (w *Writer) Finalize() error {
	if w.finalized {
		panic("epub: Finalize called twice")
	}
	if w.aborted {
		return errAborted
	}
	w.finalized = true

	manifest, nav := w.Manifest(), w.Navigation()

	if err := writeXMLToZip(w.zw, path.Join(oebpsDir, opfName), w.packageDocument(manifest)); err != nil {
		return w.fail(w.tmpName, "write", fmt.Errorf("package document: %w", err))
	}
	if err := writeXMLToZip(w.zw, path.Join(oebpsDir, ncxName), w.navigationDocument(nav)); err != nil {
		return w.fail(w.tmpName, "write", fmt.Errorf("table of contents: %w", err))
	}

	// make sure buffers are flushed before continuing
	err := w.zw.Close()
	w.zw = nil
	if err != nil {
		return w.fail(w.tmpName, "close", err)
	}
	err = w.f.Close()
	w.f = nil
	if err != nil {
		return w.fail(w.tmpName, "close", err)
	}

	if w.cfg.FixZip {
		err = copyZipWithoutDataDescriptors(w.tmpName, w.dest)
	} else {
		err = copyFile(w.tmpName, w.dest)
	}
	if err != nil {
		return w.fail(w.dest, "write", err)
	}

	if err := w.cleanup(); err != nil {
		w.log.Warn("Unable to remove work directory", zap.String("dir", w.workDir), zap.Error(err))
	}

	if w.cfg.Verify {
		if err := w.verifyOutput(manifest); err != nil {
			return err
		}
	}

	w.log.Info("Archive written",
		zap.String("file", w.dest),
		zap.Int("chapters", len(nav)),
		zap.Int("entries", len(manifest)),
		zap.Bool("cover", w.cover))
	return nil
}

// Abort discards archive and removes partial output. It does nothing once
// archive has been finalized or aborted.
func (w *Writer) Abort() error {
	if w.finalized || w.aborted {
		return nil
	}
	w.aborted = true
	if err := w.cleanup(); err != nil {
		return &IOError{Path: w.tmpName, Op: "remove", Err: err}
	}
	w.log.Debug("Archive aborted", zap.String("file", w.tmpName))
	return nil
}

// reserve registers ids and hrefs of new entries, nothing is registered if
// any of them is already taken.
func (w *Writer) reserve(entries []ManifestEntry) error {
	ids := make(map[string]struct{}, len(entries))
	hrefs := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := w.ids[e.ID]; dup {
			return fmt.Errorf("duplicate manifest id %q", e.ID)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("duplicate manifest id %q", e.ID)
		}
		if _, dup := w.hrefs[e.Href]; dup {
			return fmt.Errorf("duplicate manifest href %q", e.Href)
		}
		if _, dup := hrefs[e.Href]; dup {
			return fmt.Errorf("duplicate manifest href %q", e.Href)
		}
		ids[e.ID], hrefs[e.Href] = struct{}{}, struct{}{}
	}
	maps.Copy(w.ids, ids)
	maps.Copy(w.hrefs, hrefs)
	return nil
}

// add writes data under content directory.
func (w *Writer) add(href string, data []byte) error {
	if err := writeDataToZip(w.zw, path.Join(oebpsDir, href), data); err != nil {
		return w.ioError(fmt.Errorf("%s: %w", href, err))
	}
	return nil
}

func (w *Writer) ioError(err error) error {
	return &IOError{Path: w.tmpName, Op: "write", Err: err}
}

// fail removes everything produced so far and reports failure.
func (w *Writer) fail(name, op string, err error) error {
	if cerr := w.cleanup(); cerr != nil {
		w.log.Warn("Unable to remove work directory", zap.String("dir", w.workDir), zap.Error(cerr))
	}
	return &IOError{Path: name, Op: op, Err: err}
}

func (w *Writer) cleanup() error {
	if w.zw != nil {
		_ = w.zw.Close()
		w.zw = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	return os.RemoveAll(w.workDir)
}

// verifyOutput removes archive which failed verification.
func (w *Writer) verifyOutput(manifest []ManifestEntry) error {
	err := w.verify(manifest)
	if err == nil {
		return nil
	}
	if rerr := os.Remove(w.dest); rerr != nil && !os.IsNotExist(rerr) {
		w.log.Warn("Unable to remove archive", zap.String("file", w.dest), zap.Error(rerr))
	}
	return &IOError{Path: w.dest, Op: "verify", Err: err}
}

// verify reads produced archive back and makes sure it is structurally sound
// and matches what has been written.
func (w *Writer) verify(manifest []ManifestEntry) error {
	book, err := archive.Inspect(w.dest)
	if err != nil {
		return fmt.Errorf("archive %s failed verification: %w", w.dest, err)
	}
	var spine []string
	for _, e := range manifest {
		if e.InSpine {
			spine = append(spine, e.ID)
		}
	}
	if !slices.Equal(book.Spine, spine) {
		return fmt.Errorf("archive %s failed verification: spine %v, expected %v", w.dest, book.Spine, spine)
	}
	if len(book.Manifest) != len(manifest) {
		return fmt.Errorf("archive %s failed verification: %d manifest items, expected %d", w.dest, len(book.Manifest), len(manifest))
	}
	w.log.Debug("Archive verified", zap.String("file", w.dest), zap.Int("entries", len(book.Entries)))
	return nil
}
