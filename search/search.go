// Package search provides web search engines implementing quizai.Searcher.
package search

import (
	"context"
	"os"
	"strings"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Engine names a search backend. The values match SEARCH_API.
type Engine string

const (
	EngineTavily     Engine = "tavily"
	EngineDuckDuckGo Engine = "duckduckgo"
	EngineBrave      Engine = "brave_search"
	EngineArxiv      Engine = "arxiv"
	EngineWikipedia  Engine = "wikipedia"
)

// DefaultEngine is used when SEARCH_API is empty.
const DefaultEngine = EngineTavily

var ErrUnsupportedEngine = goerr.New("unsupported search engine")

// Config holds the engine independent settings, read from the
// SEARCH_ENGINE block of the configuration file.
type Config struct {
	Engine         Engine   `yaml:"engine"`
	IncludeDomains []string `yaml:"include_domains"`
	ExcludeDomains []string `yaml:"exclude_domains"`

	WikipediaLang        string `yaml:"wikipedia_lang"`
	WikipediaDocCharsMax int    `yaml:"wikipedia_doc_content_chars_max"`
	TavilyAPIKey         string `yaml:"-"`
	BraveAPIKey          string `yaml:"-"`
}

// WithEnv fills the engine and API keys from the environment when
// they are not set yet.
func (c Config) WithEnv() Config {
	if c.Engine == "" {
		c.Engine = Engine(strings.TrimSpace(os.Getenv("SEARCH_API")))
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.TavilyAPIKey == "" {
		c.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if c.BraveAPIKey == "" {
		c.BraveAPIKey = os.Getenv("BRAVE_SEARCH_API_KEY")
	}
	return c
}

// New builds the searcher selected by cfg.Engine.
func New(cfg Config) (quizai.Searcher, error) {
	switch cfg.Engine {
	case EngineTavily, "":
		t, err := NewTavily(cfg.TavilyAPIKey,
			WithIncludeDomains(cfg.IncludeDomains...),
			WithExcludeDomains(cfg.ExcludeDomains...),
		)
		if err != nil {
			return nil, err
		}
		return t, nil
	case EngineDuckDuckGo:
		d, err := NewDuckDuckGo()
		if err != nil {
			return nil, err
		}
		return d, nil
	case EngineBrave:
		b, err := NewBrave(cfg.BraveAPIKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case EngineArxiv:
		return NewArxiv(), nil
	case EngineWikipedia:
		return NewWikipedia(cfg.WikipediaLang, cfg.WikipediaDocCharsMax), nil
	default:
		return nil, goerr.Wrap(ErrUnsupportedEngine, "unknown engine", goerr.V("engine", cfg.Engine))
	}
}

// limited throttles a searcher with a token bucket shared by every caller.
type limited struct {
	searcher quizai.Searcher
	limiter  *rate.Limiter
}

// Limit wraps s so that at most r searches per second (with burst) are
// issued. Callers wait for a token or for ctx to be done.
func Limit(s quizai.Searcher, r rate.Limit, burst int) quizai.Searcher {
	return &limited{searcher: s, limiter: rate.NewLimiter(r, burst)}
}

func (l *limited) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "search rate limit wait failed", goerr.V("query", query))
	}
	return l.searcher.Search(ctx, query, maxResults)
}

func logSearch(ctx context.Context, engine Engine, query string, n int) {
	ctxlog.From(ctx).Debug("search done", "engine", engine, "query", query, "results", n)
}
