package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"wte/config"
	"wte/state"
)

const storyPage = `<html><body>
<div class="fic-title"><h1 property="name">Test Story</h1>
<h4 property="author"><span>by</span> Some Author</h4></div>
<table id="chapters"><tbody>
<tr><td><a href="/fiction/1234/s/chapter/1">Chapter 1 - Beginning</a></td></tr>
<tr><td><a href="/fiction/1234/s/chapter/2">Chapter 2: Middle</a></td></tr>
<tr><td><a href="/fiction/1234/s/chapter/3">3. End</a></td></tr>
</tbody></table>
</body></html>`

const otherStoryPage = `<html><body>
<div class="fic-title"><h1 property="name">Other Story</h1></div>
<table id="chapters"><tbody>
<tr><td><a href="/fiction/5678/o/chapter/1">Prologue</a></td></tr>
<tr><td><a href="/fiction/5678/o/chapter/2">Chapter 1</a></td></tr>
</tbody></table>
</body></html>`

const chapterPage = `<html><body><div class="chapter-inner"><p>Text of chapter %s.</p></div></body></html>`

type testSite struct {
	*httptest.Server
	// chapter number answering with error, 0 - none
	failing atomic.Int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/fiction/1234", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, storyPage)
	})
	mux.HandleFunc("/fiction/1234/s/chapter/{n}", func(w http.ResponseWriter, r *http.Request) {
		n := r.PathValue("n")
		if fmt.Sprint(site.failing.Load()) == n {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, chapterPage, n)
	})
	mux.HandleFunc("/fiction/5678", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, otherStoryPage)
	})
	mux.HandleFunc("/fiction/5678/o/chapter/{n}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, chapterPage, r.PathValue("n"))
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

// setupTestEnv prepares program environment talking to site and keeping
// shelf in temporary directory.
func setupTestEnv(t *testing.T, site *testSite) (context.Context, *state.LocalEnv) {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Source.BaseURL = site.URL
	cfg.Source.RequestsPerSecond = 0
	cfg.Shelf.Path = filepath.Join(t.TempDir(), "shelf.db")
	cfg.Document.Verify = true

	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Cfg = cfg
	env.Log = setupTestLogger(t)
	env.UpdateShelf = true
	return ctx, env
}

func intPtr(v int) *int {
	return &v
}
