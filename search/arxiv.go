package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

const defaultArxivURL = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	endpoint string
	client   *http.Client
}

// ArxivOption configures Arxiv.
type ArxivOption func(*Arxiv)

// WithArxivEndpoint overrides the API endpoint.
func WithArxivEndpoint(url string) ArxivOption {
	return func(a *Arxiv) {
		a.endpoint = url
	}
}

// NewArxiv creates an arXiv searcher. The API needs no key.
func NewArxiv(opts ...ArxivOption) *Arxiv {
	a := &Arxiv{
		endpoint: defaultArxivURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = quizai.DefaultMaxSearchResults
	}
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create arxiv request")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send arxiv request", goerr.V("query", query))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("arxiv search failed", goerr.V("status", resp.StatusCode))
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, goerr.Wrap(err, "failed to decode arxiv feed")
	}

	results := make([]*quizai.SearchResult, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		authors := make([]string, 0, len(e.Authors))
		for _, au := range e.Authors {
			authors = append(authors, au.Name)
		}
		published := e.Published
		if len(published) >= 10 {
			published = published[:10]
		}
		results = append(results, &quizai.SearchResult{
			Title: collapse(e.Title),
			URL:   strings.TrimSpace(e.ID),
			Content: fmt.Sprintf("Published: %s\nAuthors: %s\nSummary: %s",
				published, strings.Join(authors, ", "), collapse(e.Summary)),
		})
	}
	logSearch(ctx, EngineArxiv, query, len(results))
	return results, nil
}

// collapse folds the line breaks arXiv puts into titles and abstracts.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
