package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"wte/novel"
)

type chapterLink struct {
	title string
	href  string
}

// RoyalRoad is a story hosted on royalroad.com. Story page is fetched once
// when source is created, everything else is fetched on demand.
type RoyalRoad struct {
	client   *HTTPClient
	meta     novel.Metadata
	cover    string
	chapters []chapterLink
	log      *zap.Logger
}

var _ Source = (*RoyalRoad)(nil)

// StoryURL returns location of the story page.
func StoryURL(baseURL string, storyID int) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("bad base url %q: %w", baseURL, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("base url %q is not absolute", baseURL)
	}
	return base.JoinPath("fiction", strconv.Itoa(storyID)).String(), nil
}

// NewRoyalRoad fetches story page and prepares source for its chapters.
func NewRoyalRoad(ctx context.Context, client *HTTPClient, baseURL string, storyID int, log *zap.Logger) (*RoyalRoad, error) {
	storyURL, err := StoryURL(baseURL, storyID)
	if err != nil {
		return nil, err
	}

	log = log.Named("royalroad")
	log.Debug("Fetching story page", zap.Int("id", storyID), zap.String("url", storyURL))

	doc, page, err := client.GetHTML(ctx, storyURL)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch story %d: %w", storyID, err)
	}

	rr := &RoyalRoad{client: client, log: log}
	if err := rr.parseStoryPage(doc, page); err != nil {
		return nil, fmt.Errorf("unable to parse story %d: %w", storyID, err)
	}

	log.Debug("Story page parsed",
		zap.Stringer("story", rr.meta),
		zap.Bool("cover", len(rr.cover) > 0))
	return rr, nil
}

func (rr *RoyalRoad) parseStoryPage(doc *html.Node, page *url.URL) error {
	titleNode := find(doc, element("h1", "property", "name"))
	if titleNode == nil {
		titleNode = find(doc, byClass("fic-title"), element("h1", "", ""))
	}
	if titleNode == nil {
		return errors.New("story title not found")
	}
	title := normalizeSpace(textContent(titleNode))

	var author string
	if authorNode := find(doc, element("h4", "property", "author")); authorNode != nil {
		author = normalizeSpace(textContent(authorNode))
		if rest, ok := strings.CutPrefix(author, "by"); ok {
			author = strings.TrimSpace(rest)
		}
	}

	if img := find(doc, byClass("cover-col"), element("img", "", "")); img != nil {
		if src := attr(img, "src"); len(src) > 0 {
			if u, err := page.Parse(src); err == nil {
				rr.cover = u.String()
			} else {
				rr.log.Warn("Bad cover image reference", zap.String("src", src), zap.Error(err))
			}
		}
	}

	table := find(doc, byID("chapters"), element("tbody", "", ""))
	if table == nil {
		return errors.New("chapter list not found")
	}
	for _, tr := range findAll(table, element("tr", "", "")) {
		link, err := parseChapterRow(tr, page)
		if err != nil {
			return fmt.Errorf("chapter %d: %w", len(rr.chapters), err)
		}
		rr.chapters = append(rr.chapters, link)
	}

	rr.meta = novel.Metadata{
		SourceURI:    page.String(),
		Title:        title,
		Author:       author,
		ChapterCount: len(rr.chapters),
	}
	return nil
}

func parseChapterRow(tr *html.Node, page *url.URL) (chapterLink, error) {
	var link chapterLink
	a := find(tr, func(n *html.Node) bool {
		return element("a", "", "")(n) && hasAttr(n, "href")
	})
	switch {
	case a != nil:
		link.title, link.href = normalizeSpace(textContent(a)), attr(a, "href")
	case hasAttr(tr, "data-url"):
		link.href = attr(tr, "data-url")
		if td := find(tr, element("td", "", "")); td != nil {
			link.title = normalizeSpace(textContent(td))
		}
	default:
		return link, errors.New("row has no chapter link")
	}
	u, err := page.Parse(link.href)
	if err != nil {
		return link, fmt.Errorf("bad chapter link %q: %w", link.href, err)
	}
	link.href = u.String()
	return link, nil
}

func (rr *RoyalRoad) FetchMetadata(_ context.Context) (novel.Metadata, error) {
	return rr.meta, nil
}

// PeekChapterTitle returns chapter title from the story page without
// fetching the chapter.
func (rr *RoyalRoad) PeekChapterTitle(index int) (string, error) {
	if index < 0 || index >= len(rr.chapters) {
		return "", fmt.Errorf("%w: %d", ErrNoChapter, index)
	}
	return rr.chapters[index].title, nil
}

func (rr *RoyalRoad) FetchChapter(ctx context.Context, index int) (*novel.Chapter, error) {
	if index < 0 || index >= len(rr.chapters) {
		return nil, fmt.Errorf("%w: %d", ErrNoChapter, index)
	}
	link := rr.chapters[index]

	doc, page, err := rr.client.GetHTML(ctx, link.href)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch chapter %d: %w", index, err)
	}
	content := find(doc, byClass("chapter-inner"))
	if content == nil {
		return nil, fmt.Errorf("chapter %d (%s) has no content", index, link.href)
	}
	content.Parent.RemoveChild(content)

	return &novel.Chapter{
		Index:     index,
		SourceURI: page.String(),
		Title:     link.title,
		Content:   content,
	}, nil
}

func (rr *RoyalRoad) FetchCoverImage(ctx context.Context) ([]byte, error) {
	if len(rr.cover) == 0 {
		return nil, nil
	}
	resp, err := rr.client.Get(ctx, rr.cover)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch cover: %w", err)
	}
	return resp.Body, nil
}

func (rr *RoyalRoad) FetchImage(ctx context.Context, src string) ([]byte, string, error) {
	resp, err := rr.client.Get(ctx, src)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.ContentType, nil
}
