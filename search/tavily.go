package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultTavilyURL = "https://api.tavily.com/search"

	tavilyMaxRetries = 3
)

var ErrRateLimited = goerr.New("search api rate limited")

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey         string
	endpoint       string
	client         *http.Client
	includeDomains []string
	excludeDomains []string
	baseDelay      time.Duration
}

// TavilyOption configures Tavily.
type TavilyOption func(*Tavily)

// WithTavilyEndpoint overrides the API endpoint.
func WithTavilyEndpoint(url string) TavilyOption {
	return func(t *Tavily) {
		t.endpoint = url
	}
}

// WithTavilyHTTPClient sets the HTTP client.
func WithTavilyHTTPClient(client *http.Client) TavilyOption {
	return func(t *Tavily) {
		t.client = client
	}
}

// WithIncludeDomains limits results to the domains.
func WithIncludeDomains(domains ...string) TavilyOption {
	return func(t *Tavily) {
		t.includeDomains = append(t.includeDomains, domains...)
	}
}

// WithExcludeDomains drops results from the domains.
func WithExcludeDomains(domains ...string) TavilyOption {
	return func(t *Tavily) {
		t.excludeDomains = append(t.excludeDomains, domains...)
	}
}

// WithRetryDelay sets the first backoff delay after a 429 response. It
// doubles on every retry.
func WithRetryDelay(d time.Duration) TavilyOption {
	return func(t *Tavily) {
		t.baseDelay = d
	}
}

// NewTavily creates a Tavily searcher.
func NewTavily(apiKey string, opts ...TavilyOption) (*Tavily, error) {
	if apiKey == "" {
		return nil, goerr.New("TAVILY_API_KEY is required for tavily search")
	}
	t := &Tavily{
		apiKey:    apiKey,
		endpoint:  defaultTavilyURL,
		client:    &http.Client{Timeout: 60 * time.Second},
		baseDelay: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type tavilyRequest struct {
	Query             string   `json:"query"`
	MaxResults        int      `json:"max_results,omitempty"`
	SearchDepth       string   `json:"search_depth"`
	IncludeRawContent bool     `json:"include_raw_content"`
	IncludeImages     bool     `json:"include_images"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             query,
		MaxResults:        maxResults,
		SearchDepth:       "advanced",
		IncludeRawContent: true,
		IncludeDomains:    t.includeDomains,
		ExcludeDomains:    t.excludeDomains,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal tavily request")
	}

	var resp tavilyResponse
	if err := t.post(ctx, body, &resp); err != nil {
		return nil, goerr.Wrap(err, "tavily search failed", goerr.V("query", query))
	}

	results := make([]*quizai.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, &quizai.SearchResult{
			Title:      r.Title,
			URL:        r.URL,
			Content:    r.Content,
			RawContent: r.RawContent,
			Score:      r.Score,
		})
	}
	logSearch(ctx, EngineTavily, query, len(results))
	return results, nil
}

// post sends the request and retries with exponential backoff while the
// API answers 429. A Retry-After header in seconds overrides the delay.
func (t *Tavily) post(ctx context.Context, body []byte, out any) error {
	delay := t.baseDelay

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return goerr.Wrap(err, "failed to create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)

		resp, err := t.client.Do(req)
		if err != nil {
			return goerr.Wrap(err, "failed to send request", goerr.V("endpoint", t.endpoint))
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return goerr.Wrap(err, "failed to read response")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= tavilyMaxRetries {
				return goerr.Wrap(ErrRateLimited, "retries exhausted", goerr.V("attempts", attempt+1))
			}
			wait := delay
			if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec >= 0 {
				wait = time.Duration(sec) * time.Second
			}
			ctxlog.From(ctx).Warn("tavily rate limited, retrying", "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "canceled while waiting for retry")
			}
			delay *= 2
			continue

		case resp.StatusCode != http.StatusOK:
			return goerr.New("unexpected status",
				goerr.V("status", resp.StatusCode),
				goerr.V("body", string(data)),
			)
		}

		if err := json.Unmarshal(data, out); err != nil {
			return goerr.Wrap(err, "failed to decode response", goerr.V("body", string(data)))
		}
		return nil
	}
}
