// Package transform turns fetched chapters into archive ready documents.
package transform

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"wte/config"
	"wte/novel"
)

// ImageFetcher downloads images referenced from chapter content.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}

// Result is normalized chapter ready to be put into archive.
type Result struct {
	Index     int
	ID        string
	Path      string
	Title     string
	SourceURI string
	Document  []byte
	Images    []novel.Image
	// images removed from content because they could not be fetched
	Dropped int
}

type Transformer struct {
	images ImageFetcher
	cfg    *config.DocumentConfig
	log    *zap.Logger
}

func New(images ImageFetcher, cfg *config.DocumentConfig, log *zap.Logger) *Transformer {
	return &Transformer{
		images: images,
		cfg:    cfg,
		log:    log.Named("transform"),
	}
}

// fileTitle is title used for archive file names.
func (t *Transformer) fileTitle(title string) string {
	if t.cfg.FileNameTransliterate {
		return Transliterate(title)
	}
	return title
}

// Chapter produces archive document from fetched chapter. Chapter itself is
// left untouched. Failed images are removed from the document and never fail
// the chapter, error is only returned when document cannot be produced.
func (t *Transformer) Chapter(ctx context.Context, ch *novel.Chapter) (*Result, error) {
	if ch == nil || ch.Content == nil {
		return nil, fmt.Errorf("chapter has no content")
	}

	res := &Result{
		Index:     ch.Index,
		ID:        ChapterID(ch.Index),
		Path:      ChapterPath(ch.Index, t.fileTitle(ch.Title), t.cfg.SlugLength),
		Title:     ch.Title,
		SourceURI: ch.SourceURI,
	}

	content := cloneNode(ch.Content)
	Normalize(content, t.cfg.Images.TableWidth)
	t.rewriteImages(ctx, ch, content, res)

	doc, err := Render(ch.Title, t.cfg.Language, content)
	if err != nil {
		return nil, fmt.Errorf("unable to render chapter %d: %w", ch.Index, err)
	}
	res.Document = doc
	return res, nil
}

func (t *Transformer) rewriteImages(ctx context.Context, ch *novel.Chapter, content *html.Node, res *Result) {
	var tags []*html.Node
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Img {
				tags = append(tags, c)
				continue
			}
			collect(c)
		}
	}
	collect(content)

	base, _ := url.Parse(ch.SourceURI)
	for _, tag := range tags {
		src, err := t.fetchImage(ctx, base, tag, ch, len(res.Images))
		if err != nil {
			t.log.Warn("Unable to fetch image, removing", zap.Int("chapter", ch.Index), zap.String("src", attrValue(tag, "src")), zap.Error(err))
			tag.Parent.RemoveChild(tag)
			res.Dropped++
			continue
		}
		res.Images = append(res.Images, *src)
		setAttr(tag, "src", "../"+src.Path)
		if i := attrIndex(tag, "srcset"); i >= 0 {
			tag.Attr = append(tag.Attr[:i], tag.Attr[i+1:]...)
		}
		if attrIndex(tag, "alt") < 0 {
			setAttr(tag, "alt", "")
		}
	}
}

func (t *Transformer) fetchImage(ctx context.Context, base *url.URL, tag *html.Node, ch *novel.Chapter, seq int) (*novel.Image, error) {
	if t.cfg.Images.Skip {
		return nil, fmt.Errorf("images are not requested")
	}

	src := strings.TrimSpace(attrValue(tag, "src"))
	if src == "" {
		return nil, fmt.Errorf("image without source")
	}
	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("bad image source: %w", err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	data, reported, err := t.images.FetchImage(ctx, ref.String())
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	mediaType, ext := imageType(reported, data)
	if mediaType == "" {
		return nil, fmt.Errorf("unsupported image type %q", reported)
	}

	return &novel.Image{
		ID:          ImageID(ch.Index, seq),
		Path:        ImagePath(ch.Index, seq, t.fileTitle(ch.Title), t.cfg.SlugLength, ext),
		ContentType: mediaType,
		Data:        data,
	}, nil
}

func attrValue(n *html.Node, key string) string {
	if i := attrIndex(n, key); i >= 0 {
		return n.Attr[i].Val
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	if i := attrIndex(n, key); i >= 0 {
		n.Attr[i].Val = val
		return
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
