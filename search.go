package quizai

import (
	"context"
	"fmt"
	"strings"
)

// SearchResult is one hit returned by a web search engine.
type SearchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Searcher is the web-search capability.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]*SearchResult, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, maxResults int) ([]*SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, query string, maxResults int) ([]*SearchResult, error) {
	return f(ctx, query, maxResults)
}

// FormatSearchResults renders results as "## title\n\ncontent" sections
// separated by blank lines.
func FormatSearchResults(results []*SearchResult) string {
	sections := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", r.Title, r.Content))
	}
	return strings.Join(sections, "\n\n")
}
