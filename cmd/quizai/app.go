package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/checkpoint"
	"github.com/lpf0528/quiz-ai/crawler"
	"github.com/lpf0528/quiz-ai/search"
	"github.com/lpf0528/quiz-ai/tools"
	"github.com/lpf0528/quiz-ai/trace"
	tracelogger "github.com/lpf0528/quiz-ai/trace/logger"
	"github.com/lpf0528/quiz-ai/trace/metrics"
	traceotel "github.com/lpf0528/quiz-ai/trace/otel"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"
)

const (
	checkpointMemory = "memory"
	checkpointFile   = "file"
	checkpointSQLite = "sqlite"
	checkpointRedis  = "redis"

	serviceName = "quiz-ai"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   "conf.yaml",
			Sources: cli.EnvVars("QUIZAI_CONFIG"),
			Usage:   "Path to the model and search configuration file",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Sources: cli.EnvVars("QUIZAI_LOG_LEVEL"),
			Usage:   "Log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Sources: cli.EnvVars("QUIZAI_LOG_FORMAT"),
			Usage:   "Log format (text, json)",
		},
		&cli.StringFlag{
			Name:    "checkpoint",
			Value:   checkpointMemory,
			Sources: cli.EnvVars("QUIZAI_CHECKPOINT"),
			Usage:   "Checkpoint store (memory, file, sqlite, redis)",
		},
		&cli.StringFlag{
			Name:    "checkpoint-path",
			Value:   "checkpoints",
			Sources: cli.EnvVars("QUIZAI_CHECKPOINT_PATH"),
			Usage:   "Directory of the file store or database file of the sqlite store",
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			Sources: cli.EnvVars("QUIZAI_REDIS_ADDR"),
			Usage:   "Redis address of the redis store",
		},
		&cli.DurationFlag{
			Name:    "checkpoint-ttl",
			Sources: cli.EnvVars("QUIZAI_CHECKPOINT_TTL"),
			Usage:   "Expiration of threads in the redis store. Zero keeps them",
		},
		&cli.StringFlag{
			Name:    "trace-dir",
			Sources: cli.EnvVars("QUIZAI_TRACE_DIR"),
			Usage:   "Directory to write trace JSON files",
		},
		&cli.StringFlag{
			Name:    "otlp-endpoint",
			Sources: cli.EnvVars("QUIZAI_OTLP_ENDPOINT"),
			Usage:   "OTLP gRPC endpoint to export spans to",
		},
		&cli.FloatFlag{
			Name:    "search-rate",
			Value:   1,
			Sources: cli.EnvVars("QUIZAI_SEARCH_RATE"),
			Usage:   "Search requests per second. Zero disables throttling",
		},
		&cli.IntFlag{
			Name:    "loop-limit",
			Value:   quizai.DefaultLoopLimit,
			Sources: cli.EnvVars("QUIZAI_LOOP_LIMIT"),
			Usage:   "Maximum LLM calls of a worker step",
		},
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, goerr.Wrap(err, "invalid log level", goerr.V("level", level))
	}
	opts := &slog.HandlerOptions{Level: lv}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, goerr.New("invalid log format", goerr.V("format", format))
	}
}

// app holds what a command builds from the common flags.
type app struct {
	logger    *slog.Logger
	workflow  *quizai.Workflow
	recorder  *trace.Recorder
	registry  *prometheus.Registry
	searchCfg search.Config

	closers []func(context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cmd *cli.Command) (_ *app, err error) {
	logger, err := newLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	cfg, err := loadConfig(cmd.String("config"), os.Environ())
	if err != nil {
		return nil, err
	}
	llms, err := newRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.searchCfg = cfg.SearchEngine.WithEnv()

	opts := []quizai.Option{
		quizai.WithLogger(logger),
		quizai.WithLoopLimit(int(cmd.Int("loop-limit"))),
	}

	cp, err := a.newCheckpointer(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		opts = append(opts, quizai.WithCheckpointer(cp))
	}

	handler, err := a.newTrace(ctx, cmd)
	if err != nil {
		return nil, err
	}
	opts = append(opts, quizai.WithTrace(handler))

	searchOpts, err := a.newTools(cmd)
	if err != nil {
		return nil, err
	}
	opts = append(opts, searchOpts...)

	a.workflow = quizai.New(llms, opts...)
	return a, nil
}

// newCheckpointer returns nil for the in-memory store of the workflow.
func (a *app) newCheckpointer(ctx context.Context, cmd *cli.Command) (quizai.Checkpointer, error) {
	kind := cmd.String("checkpoint")
	path := cmd.String("checkpoint-path")

	switch kind {
	case checkpointMemory:
		return nil, nil

	case checkpointFile:
		return checkpoint.NewFile(path), nil

	case checkpointSQLite:
		if !strings.HasSuffix(path, ".db") {
			path += ".db"
		}
		db, err := checkpoint.NewSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		return db, nil

	case checkpointRedis:
		client := redis.NewClient(&redis.Options{Addr: cmd.String("redis-addr")})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, goerr.Wrap(err, "failed to connect redis", goerr.V("addr", cmd.String("redis-addr")))
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		var opts []checkpoint.RedisOption
		if ttl := cmd.Duration("checkpoint-ttl"); ttl > 0 {
			opts = append(opts, checkpoint.WithTTL(ttl))
		}
		return checkpoint.NewRedis(client, opts...), nil

	default:
		return nil, goerr.New("unknown checkpoint store", goerr.V("checkpoint", kind))
	}
}

// newTrace always logs lifecycle events and counts metrics. Trace files and
// OTLP export are enabled by flags.
func (a *app) newTrace(ctx context.Context, cmd *cli.Command) (trace.Handler, error) {
	handlers := []trace.Handler{
		tracelogger.New(tracelogger.WithLogger(a.logger)),
		metrics.New(a.registry),
	}

	if dir := cmd.String("trace-dir"); dir != "" {
		a.recorder = trace.New(
			trace.WithRepository(trace.NewFileRepository(dir)),
			trace.WithMetadata(trace.TraceMetadata{Labels: map[string]string{"service": serviceName}}),
		)
		handlers = append(handlers, a.recorder)
	}

	if endpoint := cmd.String("otlp-endpoint"); endpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OTLP exporter", goerr.V("endpoint", endpoint))
		}
		res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create otel resource")
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		a.closers = append(a.closers, tp.Shutdown)
		handlers = append(handlers, traceotel.New(traceotel.WithTracerProvider(tp)))
	}

	return trace.Multi(handlers...), nil
}

// newTools wires the search engine, the crawler and the python tool. A
// search engine that cannot be created is logged and left out so that the
// workflow still runs without background investigation results.
func (a *app) newTools(cmd *cli.Command) ([]quizai.Option, error) {
	cr := crawler.New(crawler.WithAPIKey(os.Getenv("JINA_API_KEY")))
	researcher := []quizai.Tool{tools.NewCrawl(cr)}
	coder := []quizai.Tool{tools.NewPythonREPL(tools.WithPythonTimeout(time.Minute))}

	var opts []quizai.Option
	searcher, err := search.New(a.searchCfg)
	switch {
	case err == nil:
		if r := cmd.Float("search-rate"); r > 0 {
			searcher = search.Limit(searcher, rate.Limit(r), 1)
		}
		opts = append(opts, quizai.WithSearcher(searcher))
		researcher = append([]quizai.Tool{tools.NewWebSearch(searcher, quizai.DefaultMaxSearchResults)}, researcher...)
	case errors.Is(err, search.ErrUnsupportedEngine):
		return nil, err
	default:
		a.logger.Warn("search engine is not available", "engine", a.searchCfg.Engine, "error", err)
	}

	opts = append(opts,
		quizai.WithResearcherTools(researcher...),
		quizai.WithCoderTools(coder...),
	)
	return opts, nil
}
