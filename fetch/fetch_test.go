package fetch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"wte/archive"
	"wte/shelf"
	"wte/state"
)

func openTestShelf(t *testing.T, env *state.LocalEnv) *shelf.Store {
	t.Helper()
	store, err := openShelf(env, setupTestLogger(t))
	if err != nil {
		t.Fatalf("openShelf() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func spine(t *testing.T, name string) []string {
	t.Helper()
	book, err := archive.Inspect(name)
	if err != nil {
		t.Fatalf("Inspect(%s) error = %v", name, err)
	}
	return book.Spine
}

func TestFetch_Untracked(t *testing.T) {
	site := newTestSite(t)
	ctx, env := setupTestEnv(t, site)
	dir := t.TempDir()

	if err := fetch(ctx, env, request{identifier: "1234", dest: dir}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}

	out := filepath.Join(dir, "Test_Story_1_3.epub")
	book, err := archive.Inspect(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"xhtml0000", "xhtml0001", "xhtml0002"}; !slices.Equal(book.Spine, want) {
		t.Errorf("spine = %v, want %v", book.Spine, want)
	}
	if book.Title != "Test Story: Chpts. 1 - 3" {
		t.Errorf("title = %q", book.Title)
	}

	// untracked story does not get on the shelf
	if _, err := openTestShelf(t, env).Get("1234"); !errors.Is(err, shelf.ErrNotFound) {
		t.Errorf("untracked story on the shelf: %v", err)
	}

	err = fetch(ctx, env, request{identifier: "1234", dest: dir}, env.Log)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("fetch() over existing file error = %v", err)
	}

	env.Overwrite = true
	req := request{identifier: "1234", dest: dir, start: intPtr(2), end: intPtr(2), title: "{{ .Title }} #{{ .First }}"}
	if err := fetch(ctx, env, req, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	book, err = archive.Inspect(filepath.Join(dir, "Test_Story_2_2.epub"))
	if err != nil {
		t.Fatal(err)
	}
	if book.Title != "Test Story #2" || !slices.Equal(book.Spine, []string{"xhtml0001"}) {
		t.Errorf("book = %q %v", book.Title, book.Spine)
	}
}

func TestFetch_Tracked(t *testing.T) {
	site := newTestSite(t)
	ctx, env := setupTestEnv(t, site)
	dir := t.TempDir()

	store := openTestShelf(t, env)
	if err := store.Add(shelf.Story{ID: 1234, Handle: "ts", Title: "Test Story", LastRead: 1}); err != nil {
		t.Fatal(err)
	}

	if err := fetch(ctx, env, request{identifier: "TS", dest: dir}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if got := spine(t, filepath.Join(dir, "ts_2_3.epub")); !slices.Equal(got, []string{"xhtml0001", "xhtml0002"}) {
		t.Errorf("spine = %v", got)
	}
	if st, _ := store.Get("ts"); st.LastRead != 3 {
		t.Errorf("LastRead = %d, want 3", st.LastRead)
	}

	// everything has been read
	entries, _ := os.ReadDir(dir)
	if err := fetch(ctx, env, request{identifier: "ts", dest: dir}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if after, _ := os.ReadDir(dir); len(after) != len(entries) {
		t.Errorf("nothing to fetch produced files: %d -> %d", len(entries), len(after))
	}

	// backtracking with explicit end leaves last read alone
	if err := fetch(ctx, env, request{identifier: "ts", dest: dir, end: intPtr(2)}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if got := spine(t, filepath.Join(dir, "ts_1_2.epub")); !slices.Equal(got, []string{"xhtml0000", "xhtml0001"}) {
		t.Errorf("spine = %v", got)
	}
	if st, _ := store.Get("ts"); st.LastRead != 3 {
		t.Errorf("LastRead = %d, want 3", st.LastRead)
	}
}

func TestFetch_ChapterFailure(t *testing.T) {
	site := newTestSite(t)
	ctx, env := setupTestEnv(t, site)
	dir := t.TempDir()
	site.failing.Store(2)

	store := openTestShelf(t, env)
	if err := store.Add(shelf.Story{ID: 1234, Handle: "ts", Title: "Test Story"}); err != nil {
		t.Fatal(err)
	}

	if err := fetch(ctx, env, request{identifier: "ts", dest: dir}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if got := spine(t, filepath.Join(dir, "ts_1_3.epub")); !slices.Equal(got, []string{"xhtml0000", "xhtml0002"}) {
		t.Errorf("spine = %v", got)
	}
	// reading stops before missing chapter
	if st, _ := store.Get("ts"); st.LastRead != 1 {
		t.Errorf("LastRead = %d, want 1", st.LastRead)
	}

	env.UpdateShelf = false
	site.failing.Store(0)
	env.Overwrite = true
	if err := fetch(ctx, env, request{identifier: "ts", dest: dir}, env.Log); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if st, _ := store.Get("ts"); st.LastRead != 1 {
		t.Errorf("LastRead = %d, shelf must not be updated", st.LastRead)
	}
}

func TestFetch_Errors(t *testing.T) {
	site := newTestSite(t)
	ctx, env := setupTestEnv(t, site)
	dir := t.TempDir()

	tests := []struct {
		name string
		req  request
	}{
		{"not tracked", request{identifier: "nobody", dest: dir}},
		{"no such story", request{identifier: "77", dest: dir}},
		{"bad range", request{identifier: "1234", dest: dir, start: intPtr(3), end: intPtr(1)}},
		{"past the end", request{identifier: "1234", dest: dir, start: intPtr(1), end: intPtr(9)}},
		{"bad title template", request{identifier: "1234", dest: dir, title: "{{ .Nope }}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fetch(ctx, env, tt.req, env.Log); err == nil {
				t.Error("fetch() expected error")
			}
		})
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("failed runs left files behind: %v", entries)
	}
}

func TestShow(t *testing.T) {
	site := newTestSite(t)
	ctx, env := setupTestEnv(t, site)

	store := openTestShelf(t, env)
	if err := store.Add(shelf.Story{ID: 1234, Handle: "ts", Title: "Test Story", LastRead: 2}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := show(ctx, env, &buf, request{identifier: "ts", start: intPtr(-10), end: intPtr(-1)}, env.Log); err != nil {
		t.Fatalf("show() error = %v", err)
	}
	want := `Test Story<ts>: id=1234;last_read=2
"Test Story: Chpts. 1 - 3", 3 chapters
	Chapter#<1>: "Chapter 1 - Beginning"
[+]	Chapter#<2>: "Chapter 2: Middle"
	Chapter#<3>: "3. End"
`
	if buf.String() != want {
		t.Errorf("show() output:\n%s\nwant:\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := show(ctx, env, &buf, request{identifier: "1234", start: intPtr(3), end: intPtr(2)}, env.Log); err != nil {
		t.Fatalf("show() error = %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\tNo chapters found.\n") {
		t.Errorf("show() empty range output:\n%s", buf.String())
	}
}
