// Package logger writes workflow trace events to slog.
package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/lpf0528/quiz-ai/trace"
	"github.com/m-mizutani/ctxlog"
)

// Event selects a group of log records.
type Event int

const (
	// Run logs the start and end of Run and Resume calls.
	Run Event = iota
	// Node logs every node execution with the next node.
	Node
	// LLMRequest adds the request messages and tools to LLM call records.
	LLMRequest
	// LLMResponse adds the response texts and tool calls to LLM call records.
	LLMResponse
	// ToolExec logs tool executions.
	ToolExec
	// CustomEvent logs workflow events such as interrupts and plan updates.
	CustomEvent

	eventCount
)

// Option configures the handler.
type Option func(*slogHandler)

// WithLogger sets the logger. The logger of the context (ctxlog) is used
// otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(h *slogHandler) {
		h.logger = l
	}
}

// WithEvents logs only the given events. Every event is logged by default.
func WithEvents(events ...Event) Option {
	return func(h *slogHandler) {
		h.mask = 0
		for _, e := range events {
			h.mask |= 1 << e
		}
	}
}

type slogHandler struct {
	logger *slog.Logger
	mask   uint
}

// New creates a trace.Handler logging through slog.
func New(opts ...Option) trace.Handler {
	h := &slogHandler{mask: 1<<eventCount - 1}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *slogHandler) on(e Event) bool {
	return h.mask&(1<<e) != 0
}

func (h *slogHandler) log(ctx context.Context, msg string, attrs ...any) {
	l := h.logger
	if l == nil {
		l = ctxlog.From(ctx)
	}
	l.InfoContext(ctx, msg, attrs...)
}

// frame is what a started span remembers until it ends.
type frame struct {
	threadID string
	node     string
	tool     string
	args     map[string]any
	start    time.Time
}

type frameKey struct{}

func frameFrom(ctx context.Context) frame {
	f, _ := ctx.Value(frameKey{}).(frame)
	return f
}

func push(ctx context.Context, update func(f *frame)) context.Context {
	f := frameFrom(ctx)
	f.start = time.Now()
	if update != nil {
		update(&f)
	}
	return context.WithValue(ctx, frameKey{}, f)
}

func (f frame) attrs(err error, extra ...any) []any {
	attrs := []any{slog.Duration("duration", time.Since(f.start))}
	if f.threadID != "" {
		attrs = append(attrs, slog.String("thread_id", f.threadID))
	}
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	return attrs
}

func (h *slogHandler) StartRun(ctx context.Context, threadID string) context.Context {
	if h.on(Run) {
		h.log(ctx, "run started", slog.String("thread_id", threadID))
	}
	return push(ctx, func(f *frame) { f.threadID = threadID })
}

func (h *slogHandler) EndRun(ctx context.Context, err error) {
	if h.on(Run) {
		h.log(ctx, "run ended", frameFrom(ctx).attrs(err)...)
	}
}

func (h *slogHandler) StartNode(ctx context.Context, node string) context.Context {
	return push(ctx, func(f *frame) { f.node = node })
}

func (h *slogHandler) EndNode(ctx context.Context, next string, err error) {
	if !h.on(Node) {
		return
	}
	f := frameFrom(ctx)
	h.log(ctx, "node executed", f.attrs(err,
		slog.String("node", f.node),
		slog.String("next", next),
	)...)
}

func (h *slogHandler) StartLLMCall(ctx context.Context) context.Context {
	return push(ctx, nil)
}

// EndLLMCall logs when either LLMRequest or LLMResponse is on. The llm type
// and token usage are always included.
func (h *slogHandler) EndLLMCall(ctx context.Context, data *trace.LLMCallData, err error) {
	withReq, withResp := h.on(LLMRequest), h.on(LLMResponse)
	if !withReq && !withResp {
		return
	}

	f := frameFrom(ctx)
	extra := []any{slog.String("node", f.node)}
	if data != nil {
		extra = append(extra,
			slog.String("llm_type", data.LLMType),
			slog.Bool("streamed", data.Streamed),
			slog.Int("input_tokens", data.InputTokens),
			slog.Int("output_tokens", data.OutputTokens),
		)
		if withReq && data.Request != nil {
			extra = append(extra, slog.Any("request", data.Request))
		}
		if withResp && data.Response != nil {
			extra = append(extra, slog.Any("response", data.Response))
		}
	}
	h.log(ctx, "llm call", f.attrs(err, extra...)...)
}

func (h *slogHandler) StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context {
	return push(ctx, func(f *frame) {
		f.tool = toolName
		f.args = args
	})
}

func (h *slogHandler) EndToolExec(ctx context.Context, result map[string]any, err error) {
	if !h.on(ToolExec) {
		return
	}
	f := frameFrom(ctx)
	h.log(ctx, "tool execution", f.attrs(err,
		slog.String("node", f.node),
		slog.String("tool", f.tool),
		slog.Any("args", f.args),
		slog.Any("result", result),
	)...)
}

func (h *slogHandler) AddEvent(ctx context.Context, kind string, data any) {
	if h.on(CustomEvent) {
		h.log(ctx, "event", slog.String("kind", kind), slog.Any("data", data))
	}
}

// Finish does nothing. Persisting traces is the Recorder's job.
func (h *slogHandler) Finish(context.Context) error {
	return nil
}
