// Package tools provides the built-in worker tools: web search, page
// crawling and a Python runner.
package tools

import (
	"context"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/crawler"
	"github.com/m-mizutani/goerr/v2"
)

// crawlContentLimit bounds the page content returned to the model.
const crawlContentLimit = 1000

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", goerr.New("missing string argument", goerr.V("argument", name))
	}
	return v, nil
}

// WebSearch exposes a quizai.Searcher as the "web_search" tool.
type WebSearch struct {
	searcher   quizai.Searcher
	maxResults int
}

var _ quizai.Tool = (*WebSearch)(nil)

// NewWebSearch creates the web_search tool. maxResults is passed to every
// search.
func NewWebSearch(searcher quizai.Searcher, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = quizai.DefaultMaxSearchResults
	}
	return &WebSearch{searcher: searcher, maxResults: maxResults}
}

func (x *WebSearch) Spec() quizai.ToolSpec {
	return quizai.ToolSpec{
		Name:        "web_search",
		Description: "Search the web for information. Returns titles, urls and snippets of matching pages.",
		Parameters: map[string]*quizai.Parameter{
			"query": {Type: quizai.TypeString, Description: "The search query"},
		},
		Required: []string{"query"},
	}
}

func (x *WebSearch) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	results, err := x.searcher.Search(ctx, query, x.maxResults)
	if err != nil {
		return nil, goerr.Wrap(err, "web search failed", goerr.V("query", query))
	}

	items := make([]any, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		item := map[string]any{
			"type":    "page",
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
		}
		if r.RawContent != "" {
			item["raw_content"] = r.RawContent
		}
		items = append(items, item)
	}
	return map[string]any{"results": items}, nil
}

// Crawler is the page fetching capability used by Crawl.
type Crawler interface {
	Crawl(ctx context.Context, url string) (*crawler.Article, error)
}

// Crawl exposes a crawler as the "crawl_tool" tool. Failures are reported
// to the model as text instead of an error.
type Crawl struct {
	crawler Crawler
}

var _ quizai.Tool = (*Crawl)(nil)

// NewCrawl creates the crawl_tool tool.
func NewCrawl(c Crawler) *Crawl {
	return &Crawl{crawler: c}
}

func (x *Crawl) Spec() quizai.ToolSpec {
	return quizai.ToolSpec{
		Name:        "crawl_tool",
		Description: "Use this to crawl a url and get a readable content in markdown format.",
		Parameters: map[string]*quizai.Parameter{
			"url": {Type: quizai.TypeString, Description: "The url to crawl"},
		},
		Required: []string{"url"},
	}
}

func (x *Crawl) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}

	article, err := x.crawler.Crawl(ctx, url)
	if err != nil {
		quizai.LoggerFromContext(ctx).Error("failed to crawl", "url", url, "error", err)
		return map[string]any{"content": "Failed to crawl. Error: " + err.Error()}, nil
	}

	return map[string]any{
		"url":             url,
		"crawled_content": truncate(article.Markdown(), crawlContentLimit),
	}, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
