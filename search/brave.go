package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// Brave calls the Brave web search API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// BraveOption configures Brave.
type BraveOption func(*Brave)

// WithBraveEndpoint overrides the API endpoint.
func WithBraveEndpoint(url string) BraveOption {
	return func(b *Brave) {
		b.endpoint = url
	}
}

// NewBrave creates a Brave searcher.
func NewBrave(apiKey string, opts ...BraveOption) (*Brave, error) {
	if apiKey == "" {
		return nil, goerr.New("BRAVE_SEARCH_API_KEY is required for brave search")
	}
	b := &Brave{
		apiKey:   apiKey,
		endpoint: defaultBraveURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if maxResults > 0 {
		params.Set("count", strconv.Itoa(maxResults))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create brave request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send brave request", goerr.V("query", query))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read brave response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("brave search failed",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(data)),
		)
	}

	var out braveResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode brave response")
	}

	results := make([]*quizai.SearchResult, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		results = append(results, &quizai.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Description,
		})
	}
	logSearch(ctx, EngineBrave, query, len(results))
	return results, nil
}
