package search

import (
	"context"
	"net/url"
	"strings"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/wikipedia"
)

const userAgent = "quiz-ai/1.0 (https://github.com/lpf0528/quiz-ai)"

// caller is the text in, text out contract of langchaingo tools.
type caller interface {
	Call(ctx context.Context, input string) (string, error)
}

// DuckDuckGo searches through the langchaingo DuckDuckGo tool.
type DuckDuckGo struct {
	newTool func(maxResults int) (caller, error)
}

// NewDuckDuckGo creates a DuckDuckGo searcher. The engine needs no key.
func NewDuckDuckGo() (*DuckDuckGo, error) {
	return &DuckDuckGo{
		newTool: func(maxResults int) (caller, error) {
			tool, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
			if err != nil {
				return nil, err
			}
			return tool, nil
		},
	}, nil
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = quizai.DefaultMaxSearchResults
	}
	tool, err := d.newTool(maxResults)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create duckduckgo tool")
	}
	out, err := tool.Call(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "duckduckgo search failed", goerr.V("query", query))
	}

	results := parseDuckDuckGo(out)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	logSearch(ctx, EngineDuckDuckGo, query, len(results))
	return results, nil
}

// parseDuckDuckGo reads "Title: / Description: / URL:" blocks. Text in an
// unknown layout is returned as a single result.
func parseDuckDuckGo(out string) []*quizai.SearchResult {
	var results []*quizai.SearchResult
	var cur *quizai.SearchResult

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			cur = &quizai.SearchResult{Title: strings.TrimSpace(strings.TrimPrefix(line, "Title:"))}
			results = append(results, cur)
		case cur == nil:
			continue
		case strings.HasPrefix(line, "Description:"):
			cur.Content = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}

	if len(results) == 0 && strings.TrimSpace(out) != "" {
		return []*quizai.SearchResult{{Title: "DuckDuckGo", Content: strings.TrimSpace(out)}}
	}
	return results
}

const (
	defaultWikipediaLang     = "en"
	defaultWikipediaDocChars = 4000
)

// Wikipedia searches through the langchaingo Wikipedia tool.
type Wikipedia struct {
	lang     string
	docChars int
	newTool  func(topK int) caller
}

// NewWikipedia creates a Wikipedia searcher for the language edition lang.
func NewWikipedia(lang string, docChars int) *Wikipedia {
	if lang == "" {
		lang = defaultWikipediaLang
	}
	if docChars <= 0 {
		docChars = defaultWikipediaDocChars
	}
	w := &Wikipedia{lang: lang, docChars: docChars}
	w.newTool = func(topK int) caller {
		tool := wikipedia.New(userAgent)
		tool.TopK = topK
		tool.DocMaxChars = w.docChars
		tool.LanguageCode = w.lang
		return tool
	}
	return w
}

func (w *Wikipedia) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = quizai.DefaultMaxSearchResults
	}
	out, err := w.newTool(maxResults).Call(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "wikipedia search failed", goerr.V("query", query), goerr.V("lang", w.lang))
	}

	results := w.parse(out)
	logSearch(ctx, EngineWikipedia, query, len(results))
	return results, nil
}

// parse reads "Page: / Summary:" blocks. Lines after Summary belong to the
// summary of the current page.
func (w *Wikipedia) parse(out string) []*quizai.SearchResult {
	var results []*quizai.SearchResult
	var cur *quizai.SearchResult
	var summary []string

	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimSpace(strings.Join(summary, "\n"))
		}
		summary = nil
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "Page:"):
			flush()
			title := strings.TrimSpace(strings.TrimPrefix(line, "Page:"))
			cur = &quizai.SearchResult{Title: title, URL: w.pageURL(title)}
			results = append(results, cur)
		case strings.HasPrefix(line, "Summary:"):
			summary = append(summary, strings.TrimSpace(strings.TrimPrefix(line, "Summary:")))
		case cur != nil:
			summary = append(summary, line)
		}
	}
	flush()

	if len(results) == 0 && strings.TrimSpace(out) != "" {
		return []*quizai.SearchResult{{Title: "Wikipedia", Content: strings.TrimSpace(out)}}
	}
	return results
}

func (w *Wikipedia) pageURL(title string) string {
	return "https://" + w.lang + ".wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}
