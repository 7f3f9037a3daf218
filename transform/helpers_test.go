package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"wte/config"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func setupTestConfig(t *testing.T) *config.DocumentConfig {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	return &cfg.Document
}

// parseFragment returns div holding parsed markup.
func parseFragment(t *testing.T, markup string) *html.Node {
	t.Helper()
	div := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), div)
	if err != nil {
		t.Fatalf("ParseFragment() error = %v", err)
	}
	for _, n := range nodes {
		div.AppendChild(n)
	}
	return div
}

// renderChildren serializes children of the node as html.
func renderChildren(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}
	return buf.String()
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type fakeImage struct {
	data        []byte
	contentType string
	err         error
}

// fakeImages serves images by absolute URL and remembers requests.
type fakeImages struct {
	mu        sync.Mutex
	images    map[string]fakeImage
	requested []string
}

func (f *fakeImages) FetchImage(_ context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requested = append(f.requested, url)
	img, ok := f.images[url]
	if !ok {
		return nil, "", fmt.Errorf("404 not found: %s", url)
	}
	return img.data, img.contentType, img.err
}
