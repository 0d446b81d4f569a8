package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lpf0528/quiz-ai/mcp"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAddr           = ":8000"
	defaultAllowedOrigins = "http://localhost:3000"
	shutdownTimeout       = 10 * time.Second
)

type serverOption func(*server)

func withAddr(addr string) serverOption {
	return func(s *server) {
		s.addr = addr
	}
}

func withSource(src traceSource) serverOption {
	return func(s *server) {
		s.source = src
	}
}

func withGatherer(g prometheus.Gatherer) serverOption {
	return func(s *server) {
		s.gatherer = g
	}
}

func withAllowedOrigins(origins []string) serverOption {
	return func(s *server) {
		s.allowedOrigins = origins
	}
}

// withMCPConfiguration accepts mcp_settings in chat requests.
func withMCPConfiguration(enabled bool) serverOption {
	return func(s *server) {
		s.mcpEnabled = enabled
	}
}

func withMCPOpener(fn func(ctx context.Context, settings mcp.Settings) (*mcp.ToolSets, error)) serverOption {
	return func(s *server) {
		s.openMCP = fn
	}
}

func withRecursionLimit(limit int) serverOption {
	return func(s *server) {
		s.recursionLimit = limit
	}
}

func withLogger(logger *slog.Logger) serverOption {
	return func(s *server) {
		s.logger = logger
	}
}

type server struct {
	addr           string
	workflow       workflow
	source         traceSource
	gatherer       prometheus.Gatherer
	allowedOrigins []string
	mcpEnabled     bool
	openMCP        func(ctx context.Context, settings mcp.Settings) (*mcp.ToolSets, error)
	recursionLimit int
	logger         *slog.Logger
	mux            *http.ServeMux
}

func newServer(wf workflow, opts ...serverOption) *server {
	s := &server{
		addr:           defaultAddr,
		workflow:       wf,
		gatherer:       prometheus.DefaultGatherer,
		allowedOrigins: []string{defaultAllowedOrigins},
		openMCP: func(ctx context.Context, settings mcp.Settings) (*mcp.ToolSets, error) {
			return mcp.Open(ctx, settings, nil)
		},
		logger: slog.Default(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("GET /api/threads/{id}", s.handleGetThread)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if s.source != nil {
		s.mux.HandleFunc("GET /api/traces", s.handleListTraces)
		s.mux.HandleFunc("GET /api/traces/{id}", s.handleGetTrace)
	}
}

func (s *server) handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.mux)
}

// start serves until ctx is canceled, then shuts down gracefully.
func (s *server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.V("addr", s.addr))
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", "addr", listener.Addr().String(), "allowed_origins", s.allowedOrigins)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
