package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/time/rate"

	"wte/config"
)

// maxBodySize limits amount of data read from a single response.
const maxBodySize = 64 << 20

// StatusError is returned for responses outside of 2xx range.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response %q for %s", e.Status, e.URL)
}

// Response is fully read server response.
type Response struct {
	// URL after redirects
	URL         *url.URL
	ContentType string
	Body        []byte
}

// HTTPClient performs throttled requests to the publication site. It is safe
// for concurrent use.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
	agent   string
	cookie  config.SecretString
	// forced page encoding, nil when pages declare their own
	enc     encoding.Encoding
	maxBody int64
	rpt     *config.Report
	log     *zap.Logger
}

// NewHTTPClient creates client according to configuration. When report is
// not nil every parsed page is stored in it.
func NewHTTPClient(cfg *config.SourceConfig, rpt *config.Report, log *zap.Logger) *HTTPClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		agent:   cfg.UserAgent,
		cookie:  cfg.Cookie,
		maxBody: maxBodySize,
		rpt:     rpt,
		log:     log.Named("http"),
	}

	if len(cfg.Charset) > 0 {
		enc, err := ianaindex.IANA.Encoding(cfg.Charset)
		if err != nil || enc == nil {
			c.log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cfg.Charset), zap.Error(err))
		} else {
			n, _ := ianaindex.IANA.Name(enc)
			c.log.Debug("Forcefully decoding all pages", zap.String("charset", n))
			c.enc = enc
		}
	}
	return c
}

// Get waits for its turn and reads the whole response.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if len(c.agent) > 0 {
		req.Header.Set("User-Agent", c.agent)
	}
	if len(c.cookie) > 0 {
		req.Header.Set("Cookie", c.cookie.Reveal())
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read response for %s: %w", rawURL, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response for %s is larger than %d bytes", rawURL, c.maxBody)
	}

	c.log.Debug("Fetched",
		zap.String("url", rawURL),
		zap.Int("size", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		URL:         resp.Request.URL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// GetHTML fetches page and parses it, converting body to UTF-8 using
// forced, declared or detected encoding.
func (c *HTTPClient) GetHTML(ctx context.Context, rawURL string) (*html.Node, *url.URL, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	c.rpt.StoreData(reportName(resp.URL), resp.Body)

	var r io.Reader
	if c.enc != nil {
		r = c.enc.NewDecoder().Reader(bytes.NewReader(resp.Body))
	} else if r, err = charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType); err != nil {
		return nil, nil, fmt.Errorf("unable to decode %s: %w", rawURL, err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse %s: %w", rawURL, err)
	}
	return doc, resp.URL, nil
}

func reportName(u *url.URL) string {
	name := strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", "_")
	if len(name) == 0 {
		name = "index"
	}
	if path.Ext(name) == "" {
		name += ".html"
	}
	return path.Join("pages", u.Hostname(), config.CleanFileName(name))
}
