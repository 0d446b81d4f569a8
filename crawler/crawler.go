// Package crawler fetches a web page through the Jina reader and extracts
// the readable article.
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/microcosm-cc/bluemonday"
)

const defaultJinaURL = "https://r.jina.ai/"

var ErrFetchFailed = goerr.New("failed to fetch page")

// Article is the readable part of a page.
type Article struct {
	URL     string
	Title   string
	Excerpt string
	Text    string
}

// Markdown renders the article as a title heading followed by its text.
func (a *Article) Markdown() string {
	var b strings.Builder
	if a.Title != "" {
		b.WriteString("# " + a.Title + "\n\n")
	}
	b.WriteString(a.Text)
	return b.String()
}

// Crawler fetches pages through the Jina reader.
type Crawler struct {
	endpoint string
	apiKey   string
	client   *http.Client
	policy   *bluemonday.Policy
}

// Option configures Crawler.
type Option func(*Crawler)

// WithEndpoint overrides the Jina reader endpoint.
func WithEndpoint(url string) Option {
	return func(c *Crawler) {
		c.endpoint = url
	}
}

// WithAPIKey sets the Jina API key for a higher rate limit.
func WithAPIKey(key string) Option {
	return func(c *Crawler) {
		c.apiKey = key
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) {
		c.client = client
	}
}

// New creates a crawler.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		endpoint: defaultJinaURL,
		client:   &http.Client{Timeout: 60 * time.Second},
		policy:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches pageURL as HTML through the reader and extracts the article.
func (c *Crawler) Crawl(ctx context.Context, pageURL string) (*Article, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, goerr.New("invalid url", goerr.V("url", pageURL))
	}

	html, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract article", goerr.V("url", pageURL))
	}

	return &Article{
		URL:     pageURL,
		Title:   strings.TrimSpace(c.policy.Sanitize(article.Title)),
		Excerpt: strings.TrimSpace(c.policy.Sanitize(article.Excerpt)),
		Text:    strings.TrimSpace(c.policy.Sanitize(article.TextContent)),
	}, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal jina request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create jina request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Return-Format", "html")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		ctxlog.From(ctx).Warn("JINA_API_KEY is not set, the reader applies a lower rate limit")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(ErrFetchFailed, err.Error(), goerr.V("url", pageURL))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read jina response", goerr.V("url", pageURL))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.Wrap(ErrFetchFailed, "unexpected status",
			goerr.V("url", pageURL),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(data)),
		)
	}
	return data, nil
}
