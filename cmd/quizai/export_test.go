package main

import (
	"bufio"
	"context"
	"io"
	"net/http"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/mcp"
	"github.com/lpf0528/quiz-ai/trace"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	ListTracesResponse = listTracesResponse
	TraceSummary       = traceSummary
	Workflow           = workflow
	ServerOption       = serverOption
)

var (
	ReplaceEnvVars        = replaceEnvVars
	SplitOrigins          = splitOrigins
	RecursionLimitFromEnv = recursionLimitFromEnv
	NewLogger             = newLogger
	ErrTraceNotFound      = errTraceNotFound
)

// ModelConfig is the exported view of one model block.
type ModelConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxRetries  *int
	Temperature *float64
}

// LoadedConfig is the exported view of a loaded configuration file.
type LoadedConfig struct {
	Models       map[quizai.LLMType]*ModelConfig
	SearchEngine string
	Include      []string
	WikiLang     string
	WikiMax      int
}

// LoadConfig loads the file and flattens the result for assertions.
func LoadConfig(path string, environ []string) (*LoadedConfig, error) {
	cfg, err := loadConfig(path, environ)
	if err != nil {
		return nil, err
	}
	out := &LoadedConfig{
		Models:       map[quizai.LLMType]*ModelConfig{},
		SearchEngine: string(cfg.SearchEngine.Engine),
		Include:      cfg.SearchEngine.IncludeDomains,
		WikiLang:     cfg.SearchEngine.WikipediaLang,
		WikiMax:      cfg.SearchEngine.WikipediaDocCharsMax,
	}
	for _, t := range quizai.LLMTypes() {
		if mc := *cfg.model(t); mc != nil {
			out.Models[t] = &ModelConfig{
				Provider:    mc.Provider,
				Model:       mc.Model,
				BaseURL:     mc.BaseURL,
				APIKey:      mc.APIKey,
				MaxRetries:  mc.MaxRetries,
				Temperature: mc.Temperature,
			}
		}
	}
	return out, nil
}

// NewRegistry loads the file and creates the LLM registry.
func NewRegistry(ctx context.Context, path string, environ []string) (*quizai.LLMRegistry, error) {
	cfg, err := loadConfig(path, environ)
	if err != nil {
		return nil, err
	}
	return newRegistry(ctx, cfg)
}

// ListResult holds the exported result of a List call.
type ListResult struct {
	Traces        []TraceSummary
	NextPageToken string
}

// TestableSource wraps a traceSource for external test access.
type TestableSource struct {
	src traceSource
}

func NewLocalSource(dir string) *TestableSource {
	return &TestableSource{src: newLocalSource(dir)}
}

func (ts *TestableSource) List(ctx context.Context, pageSize int, pageToken string) (*ListResult, error) {
	resp, err := ts.src.List(ctx, listRequest{pageSize: pageSize, pageToken: pageToken})
	if err != nil {
		return nil, err
	}
	return &ListResult{Traces: resp.traces, NextPageToken: resp.nextPageToken}, nil
}

func (ts *TestableSource) Get(ctx context.Context, traceID string) (*trace.Trace, error) {
	return ts.src.Get(ctx, traceID)
}

// Server is the exported view of server for tests.
type Server struct {
	s *server
}

func NewServer(wf workflow, opts ...serverOption) *Server {
	return &Server{s: newServer(wf, opts...)}
}

// Handler returns the handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.s.handler()
}

func WithTestSource(ts *TestableSource) serverOption {
	return withSource(ts.src)
}

func WithGatherer(g prometheus.Gatherer) serverOption {
	return withGatherer(g)
}

func WithAllowedOrigins(origins []string) serverOption {
	return withAllowedOrigins(origins)
}

func WithMCPConfiguration(enabled bool) serverOption {
	return withMCPConfiguration(enabled)
}

func WithMCPOpener(fn func(ctx context.Context, settings mcp.Settings) (*mcp.ToolSets, error)) serverOption {
	return withMCPOpener(fn)
}

func WithRecursionLimit(limit int) serverOption {
	return withRecursionLimit(limit)
}

// Research runs the terminal loop with the given input and output.
func Research(ctx context.Context, wf workflow, in io.Reader, out io.Writer, thread, query string, cfg quizai.Config) error {
	t := &terminal{out: out, in: bufio.NewReader(in)}
	return t.research(ctx, wf, thread, query, cfg)
}
