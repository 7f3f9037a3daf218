package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"wte/archive"
	"wte/config"
	"wte/novel"
	"wte/transform"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func setupTestConfig(t *testing.T) *config.DocumentConfig {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("Failed to load default configuration: %v", err)
	}
	cfg.Document.Verify = true
	return &cfg.Document
}

func testMeta(count int) novel.Metadata {
	return novel.Metadata{
		SourceURI:    "https://www.royalroad.com/fiction/1234",
		Title:        "The Test Serial",
		Author:       "Some Author",
		ChapterCount: count,
	}
}

// testChapter builds transformed chapter with the given number of images.
func testChapter(index, images int) *transform.Result {
	title := fmt.Sprintf("Chapter %d", index+1)
	res := &transform.Result{
		Index:    index,
		ID:       transform.ChapterID(index),
		Path:     transform.ChapterPath(index, title, transform.DefaultSlugLength),
		Title:    title,
		Document: []byte("<html xmlns=\"http://www.w3.org/1999/xhtml\"><body><p>text</p></body></html>"),
	}
	for seq := range images {
		res.Images = append(res.Images, novel.Image{
			ID:          transform.ImageID(index, seq),
			Path:        transform.ImagePath(index, seq, title, transform.DefaultSlugLength, "png"),
			ContentType: "image/png",
			Data:        []byte("png data"),
		})
	}
	return res
}

func openTestWriter(t *testing.T, cfg *config.DocumentConfig, count int) (*Writer, string) {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "out", "book.epub")
	w, err := Open(dest, testMeta(count), cfg, setupTestLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Abort() })
	return w, dest
}

func readEntry(t *testing.T, name, entry string) string {
	t.Helper()
	r, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer r.Close()
	f, err := r.Open(entry)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", entry, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", entry, err)
	}
	return string(data)
}

func TestWriter_OrderIndependentOfCompletion(t *testing.T) {
	for _, fixZip := range []bool{true, false} {
		t.Run(fmt.Sprintf("fix_zip=%v", fixZip), func(t *testing.T) {
			cfg := setupTestConfig(t)
			cfg.FixZip = fixZip
			w, dest := openTestWriter(t, cfg, 5)

			for _, idx := range []int{3, 0, 4, 2} {
				if err := w.AddChapter(testChapter(idx, idx%2)); err != nil {
					t.Fatalf("AddChapter(%d) error = %v", idx, err)
				}
			}
			if err := w.Finalize(); err != nil {
				t.Fatalf("Finalize() error = %v", err)
			}

			book, err := archive.Inspect(dest)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			wantSpine := []string{"xhtml0000", "xhtml0002", "xhtml0003", "xhtml0004"}
			if !slices.Equal(book.Spine, wantSpine) {
				t.Errorf("spine = %v, want %v", book.Spine, wantSpine)
			}
			var orders []int
			for _, np := range book.Nav {
				orders = append(orders, np.PlayOrder)
			}
			if !slices.Equal(orders, []int{1, 3, 4, 5}) {
				t.Errorf("play order = %v, want [1 3 4 5]", orders)
			}
			if _, ok := book.Item("img0003_0000"); !ok {
				t.Error("image of chapter 3 missing from manifest")
			}
			if book.Title != "The Test Serial" {
				t.Errorf("title = %q", book.Title)
			}
			if !strings.HasPrefix(book.Identifier, "urn:uuid:") {
				t.Errorf("identifier = %q", book.Identifier)
			}

			if fixZip {
				r, err := zip.OpenReader(dest)
				if err != nil {
					t.Fatal(err)
				}
				defer r.Close()
				for _, f := range r.File {
					if f.Flags&0x8 != 0 {
						t.Errorf("entry %s still uses data descriptor", f.Name)
					}
				}
			}
		})
	}
}

func TestWriter_GapInRange(t *testing.T) {
	w, dest := openTestWriter(t, setupTestConfig(t), 3)

	// chapter 1 failed and is never added
	for _, idx := range []int{2, 0} {
		if err := w.AddChapter(testChapter(idx, 0)); err != nil {
			t.Fatalf("AddChapter(%d) error = %v", idx, err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	nav := w.Navigation()
	if len(nav) != 2 || nav[0].PlayOrder != 1 || nav[1].PlayOrder != 3 {
		t.Errorf("Navigation() = %+v", nav)
	}

	ncx := readEntry(t, dest, "OEBPS/toc.ncx")
	for _, want := range []string{`id="body0000" playOrder="1"`, `id="body0002" playOrder="3"`, `name="dtb:depth" content="1"`, "<text>Chapter 3</text>"} {
		if !strings.Contains(ncx, want) {
			t.Errorf("toc.ncx does not contain %q:\n%s", want, ncx)
		}
	}

	opf := readEntry(t, dest, "OEBPS/content.opf")
	for _, want := range []string{
		`<dc:creator opf:role="aut" opf:file-as="Some Author">Some Author</dc:creator>`,
		"<dc:language>en</dc:language>",
		"<dc:source>https://www.royalroad.com/fiction/1234</dc:source>",
		`<itemref idref="xhtml0000"/><itemref idref="xhtml0002"/>`,
	} {
		if !strings.Contains(opf, want) {
			t.Errorf("content.opf does not contain %q:\n%s", want, opf)
		}
	}
	if strings.Contains(opf, "guide") {
		t.Error("content.opf has guide without cover")
	}
}

func TestWriter_Manifest(t *testing.T) {
	w, _ := openTestWriter(t, setupTestConfig(t), 3)

	if err := w.AddChapter(testChapter(1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := w.AddCover(&transform.Cover{Data: []byte("jpeg"), MediaType: "image/jpeg", Ext: "jpg", Width: 600, Height: 800}); err != nil {
		t.Fatal(err)
	}
	if err := w.AddChapter(testChapter(0, 0)); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, e := range w.Manifest() {
		ids = append(ids, e.ID)
	}
	want := []string{"ncx", "stylesheet", "cover-image", "cover", "xhtml0000", "xhtml0001", "img0001_0000"}
	if !slices.Equal(ids, want) {
		t.Errorf("Manifest() ids = %v, want %v", ids, want)
	}
}

func TestWriter_Cover(t *testing.T) {
	tests := []struct {
		name   string
		resize config.CoverResize
		want   string
	}{
		{"none", config.CoverResizeNone, `viewBox="0 0 600 900"`},
		{"stretch", config.CoverResizeStretch, `viewBox="0 0 100 100"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := setupTestConfig(t)
			cfg.Cover.Resize = tt.resize
			w, dest := openTestWriter(t, cfg, 1)

			if err := w.AddCover(nil); err != nil {
				t.Fatalf("AddCover(nil) error = %v", err)
			}
			cover := &transform.Cover{Data: []byte("png"), MediaType: "image/png", Ext: "png", Width: 600, Height: 900}
			if err := w.AddCover(cover); err != nil {
				t.Fatalf("AddCover() error = %v", err)
			}
			if err := w.AddCover(cover); err == nil {
				t.Error("second AddCover() expected error")
			}
			if err := w.AddChapter(testChapter(0, 0)); err != nil {
				t.Fatal(err)
			}
			if err := w.Finalize(); err != nil {
				t.Fatalf("Finalize() error = %v", err)
			}

			book, err := archive.Inspect(dest)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if book.Cover != "cover-image" {
				t.Errorf("cover meta = %q", book.Cover)
			}
			if len(book.Spine) != 2 || book.Spine[0] != "cover" {
				t.Errorf("spine = %v, cover page must be first", book.Spine)
			}
			if it, ok := book.Item("cover-image"); !ok || it.Href != "Images/cover.png" || it.MediaType != "image/png" {
				t.Errorf("cover item = %+v, %v", it, ok)
			}

			page := readEntry(t, dest, "OEBPS/Text/cover.xhtml")
			if !strings.Contains(page, tt.want) || !strings.Contains(page, `xlink:href="../Images/cover.png"`) {
				t.Errorf("unexpected cover page:\n%s", page)
			}
			opf := readEntry(t, dest, "OEBPS/content.opf")
			if !strings.Contains(opf, `<reference type="cover" title="Cover" href="Text/cover.xhtml"/>`) {
				t.Errorf("content.opf has no cover guide:\n%s", opf)
			}
		})
	}
}

func TestWriter_NoCover(t *testing.T) {
	w, dest := openTestWriter(t, setupTestConfig(t), 1)
	if err := w.AddChapter(testChapter(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	book, err := archive.Inspect(dest)
	if err != nil {
		t.Fatal(err)
	}
	if book.Cover != "" {
		t.Errorf("cover meta = %q, want none", book.Cover)
	}
	for _, id := range []string{"cover", "cover-image"} {
		if _, ok := book.Item(id); ok {
			t.Errorf("unexpected manifest entry %q", id)
		}
	}
}

func TestWriter_AddChapterErrors(t *testing.T) {
	w, _ := openTestWriter(t, setupTestConfig(t), 3)
	if err := w.AddChapter(testChapter(1, 0)); err != nil {
		t.Fatal(err)
	}

	clash := testChapter(2, 0)
	clash.ID = transform.ChapterID(1)

	tests := []struct {
		name string
		res  *transform.Result
	}{
		{"nil", nil},
		{"duplicate index", testChapter(1, 0)},
		{"negative index", testChapter(-1, 0)},
		{"index out of range", testChapter(3, 0)},
		{"duplicate id", clash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.AddChapter(tt.res); err == nil {
				t.Error("AddChapter() expected error")
			}
		})
	}

	// rejected chapter must not reserve anything
	if err := w.AddChapter(testChapter(2, 0)); err != nil {
		t.Errorf("AddChapter(2) error = %v", err)
	}
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestWriter_MisusePanics(t *testing.T) {
	w, _ := openTestWriter(t, setupTestConfig(t), 2)
	if err := w.AddChapter(testChapter(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	expectPanic(t, "second Finalize", func() { _ = w.Finalize() })
	expectPanic(t, "AddChapter after Finalize", func() { _ = w.AddChapter(testChapter(1, 0)) })
	expectPanic(t, "AddCover after Finalize", func() { _ = w.AddCover(&transform.Cover{Ext: "png"}) })

	if err := w.Abort(); err != nil {
		t.Errorf("Abort() after Finalize error = %v", err)
	}
}

func TestWriter_Abort(t *testing.T) {
	w, dest := openTestWriter(t, setupTestConfig(t), 2)
	if err := w.AddChapter(testChapter(0, 1)); err != nil {
		t.Fatal(err)
	}

	if err := w.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if _, err := os.Stat(w.workDir); !os.IsNotExist(err) {
		t.Errorf("work directory still exists: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists after abort: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Errorf("second Abort() error = %v", err)
	}
	if err := w.AddChapter(testChapter(1, 0)); !errors.Is(err, errAborted) {
		t.Errorf("AddChapter() after Abort error = %v", err)
	}
	if err := w.Finalize(); !errors.Is(err, errAborted) {
		t.Errorf("Finalize() after Abort error = %v", err)
	}
}

func TestWriter_FinalizeIOError(t *testing.T) {
	w, dest := openTestWriter(t, setupTestConfig(t), 1)
	if err := w.AddChapter(testChapter(0, 0)); err != nil {
		t.Fatal(err)
	}

	// destination occupied by non empty directory
	if err := os.MkdirAll(filepath.Join(dest, "busy"), 0755); err != nil {
		t.Fatal(err)
	}

	err := w.Finalize()
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Finalize() error = %v, want *IOError", err)
	}
	if ioErr.Path != dest {
		t.Errorf("IOError.Path = %q, want %q", ioErr.Path, dest)
	}
	if !strings.Contains(err.Error(), dest) {
		t.Errorf("error %q does not name destination", err)
	}
	if _, err := os.Stat(w.workDir); !os.IsNotExist(err) {
		t.Errorf("work directory still exists: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "busy")); err != nil {
		t.Errorf("pre-existing content removed: %v", err)
	}
}

func TestOpen_InvalidMetadata(t *testing.T) {
	meta := testMeta(-1)
	if _, err := Open(filepath.Join(t.TempDir(), "book.epub"), meta, setupTestConfig(t), setupTestLogger(t)); err == nil {
		t.Error("Open() expected error for negative chapter count")
	}
}

func TestWriter_Identifier(t *testing.T) {
	cfg := setupTestConfig(t)
	log := setupTestLogger(t)

	id := func(meta novel.Metadata) string {
		w, err := Open(filepath.Join(t.TempDir(), "book.epub"), meta, cfg, log)
		if err != nil {
			t.Fatal(err)
		}
		defer w.Abort()
		return w.Identifier()
	}

	meta := testMeta(3)
	if id(meta) != id(meta) {
		t.Error("identifier is not stable")
	}
	if id(meta) == id(meta.WithTitle("Other")) {
		t.Error("identifier does not depend on title")
	}
}

func TestWriter_VerifyFailure(t *testing.T) {
	cfg := setupTestConfig(t)
	cfg.Verify = false
	w, dest := openTestWriter(t, cfg, 1)
	if err := w.AddChapter(testChapter(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := w.verifyOutput(w.Manifest()); err != nil {
		t.Fatalf("verifyOutput() on good archive error = %v", err)
	}

	if err := os.WriteFile(dest, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	err := w.verifyOutput(w.Manifest())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("verifyOutput() error = %v, want *IOError", err)
	}
	if ioErr.Path != dest || ioErr.Op != "verify" {
		t.Errorf("IOError = %+v", ioErr)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("archive which failed verification still exists: %v", err)
	}
}
