// Package otel exports the research workflow as OpenTelemetry spans. A run
// is the root span with node spans below it; LLM calls and tool executions
// are children of the node that made them.
//
//	wf := quizai.New(registry, quizai.WithTrace(otel.New(otel.WithTracerProvider(tp))))
package otel

import (
	"context"
	"encoding/json"

	"github.com/lpf0528/quiz-ai/trace"
	otelAPI "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lpf0528/quiz-ai"

// Option configures the handler.
type Option func(*handler)

// WithTracerProvider sets the TracerProvider. The global one is used
// otherwise.
func WithTracerProvider(tp otelTrace.TracerProvider) Option {
	return func(h *handler) {
		h.provider = tp
	}
}

type handler struct {
	provider otelTrace.TracerProvider
	tracer   otelTrace.Tracer
}

// New creates a trace.Handler emitting OpenTelemetry spans.
func New(opts ...Option) trace.Handler {
	h := &handler{}
	for _, opt := range opts {
		opt(h)
	}
	if h.provider == nil {
		h.provider = otelAPI.GetTracerProvider()
	}
	h.tracer = h.provider.Tracer(tracerName)
	return h
}

func marshal(v any) (string, error) {
	raw, err := json.Marshal(v)
	return string(raw), err
}

func (h *handler) start(ctx context.Context, name string, kind otelTrace.SpanKind, attrs ...attribute.KeyValue) context.Context {
	ctx, _ = h.tracer.Start(ctx, name, otelTrace.WithSpanKind(kind), otelTrace.WithAttributes(attrs...))
	return ctx
}

func end(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := otelTrace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (h *handler) StartRun(ctx context.Context, threadID string) context.Context {
	return h.start(ctx, "run", otelTrace.SpanKindInternal, keyThreadID.String(threadID))
}

func (h *handler) EndRun(ctx context.Context, err error) {
	end(ctx, err)
}

func (h *handler) StartNode(ctx context.Context, node string) context.Context {
	return h.start(ctx, "node:"+node, otelTrace.SpanKindInternal, keyNode.String(node))
}

func (h *handler) EndNode(ctx context.Context, next string, err error) {
	end(ctx, err, keyNext.String(next))
}

func (h *handler) StartLLMCall(ctx context.Context) context.Context {
	return h.start(ctx, "llm_call", otelTrace.SpanKindClient)
}

func (h *handler) EndLLMCall(ctx context.Context, data *trace.LLMCallData, err error) {
	if data == nil {
		end(ctx, err)
		return
	}
	end(ctx, err,
		keyLLMType.String(data.LLMType),
		keyLLMStreamed.Bool(data.Streamed),
		keyInputTokens.Int(data.InputTokens),
		keyOutputTokens.Int(data.OutputTokens),
	)
}

func (h *handler) StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context {
	attrs := []attribute.KeyValue{keyToolName.String(toolName)}
	if args != nil {
		if kv, ok := jsonAttr(keyToolArgs, args); ok {
			attrs = append(attrs, kv)
		}
	}
	return h.start(ctx, "tool:"+toolName, otelTrace.SpanKindInternal, attrs...)
}

func (h *handler) EndToolExec(ctx context.Context, _ map[string]any, err error) {
	end(ctx, err)
}

// AddEvent adds a span event to the current span. data is attached as JSON.
func (h *handler) AddEvent(ctx context.Context, kind string, data any) {
	var opts []otelTrace.EventOption
	if kv, ok := jsonAttr(keyEventData, data); ok {
		opts = append(opts, otelTrace.WithAttributes(kv))
	}
	otelTrace.SpanFromContext(ctx).AddEvent(kind, opts...)
}

// Finish does nothing. Spans are exported by the span processor of the
// TracerProvider.
func (h *handler) Finish(context.Context) error {
	return nil
}
