// Package metrics provides a Prometheus trace handler. It counts runs,
// node executions, LLM calls, tokens and tool executions, and observes
// their durations.
//
//	reg := prometheus.NewRegistry()
//	wf := quizai.New(registry, quizai.WithTrace(metrics.New(reg)))
package metrics

import (
	"context"
	"time"

	"github.com/lpf0528/quiz-ai/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizai"

const (
	statusOK    = "ok"
	statusError = "error"
)

type startKey struct{}

type start struct {
	at   time.Time
	name string
}

// Handler implements trace.Handler by updating Prometheus collectors.
type Handler struct {
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	nodes        *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	toolExecs    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec

	now func() time.Time
}

var _ trace.Handler = (*Handler)(nil)

// New registers the collectors to reg and returns the handler.
func New(reg prometheus.Registerer) *Handler {
	factory := promauto.With(reg)

	return &Handler{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs and resumes by status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of workflow runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		nodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by node and status",
		}, []string{"node", "status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls by llm type and status",
		}, []string{"llm_type", "status"}),
		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Duration of LLM calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"llm_type"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total tokens used by llm type and direction",
		}, []string{"llm_type", "direction"}),
		toolExecs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool executions by tool and status",
		}, []string{"tool", "status"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of trace events by kind",
		}, []string{"kind"}),

		now: time.Now,
	}
}

func (h *Handler) begin(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, startKey{}, &start{at: h.now(), name: name})
}

// elapsed returns the seconds since the innermost begin in ctx.
func (h *Handler) elapsed(ctx context.Context) (string, float64, bool) {
	s, ok := ctx.Value(startKey{}).(*start)
	if !ok {
		return "", 0, false
	}
	return s.name, h.now().Sub(s.at).Seconds(), true
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

func (h *Handler) StartRun(ctx context.Context, threadID string) context.Context {
	return h.begin(ctx, threadID)
}

func (h *Handler) EndRun(ctx context.Context, err error) {
	h.runs.WithLabelValues(status(err)).Inc()
	if _, sec, ok := h.elapsed(ctx); ok {
		h.runDuration.Observe(sec)
	}
}

func (h *Handler) StartNode(ctx context.Context, node string) context.Context {
	return h.begin(ctx, node)
}

func (h *Handler) EndNode(ctx context.Context, next string, err error) {
	node, sec, ok := h.elapsed(ctx)
	if !ok {
		return
	}
	h.nodes.WithLabelValues(node, status(err)).Inc()
	h.nodeDuration.WithLabelValues(node).Observe(sec)
}

func (h *Handler) StartLLMCall(ctx context.Context) context.Context {
	return h.begin(ctx, "")
}

func (h *Handler) EndLLMCall(ctx context.Context, data *trace.LLMCallData, err error) {
	llmType := "unknown"
	if data != nil && data.LLMType != "" {
		llmType = data.LLMType
	}

	h.llmCalls.WithLabelValues(llmType, status(err)).Inc()
	if _, sec, ok := h.elapsed(ctx); ok {
		h.llmDuration.WithLabelValues(llmType).Observe(sec)
	}
	if data != nil {
		h.tokens.WithLabelValues(llmType, "input").Add(float64(data.InputTokens))
		h.tokens.WithLabelValues(llmType, "output").Add(float64(data.OutputTokens))
	}
}

func (h *Handler) StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context {
	return h.begin(ctx, toolName)
}

func (h *Handler) EndToolExec(ctx context.Context, result map[string]any, err error) {
	tool, sec, ok := h.elapsed(ctx)
	if !ok {
		return
	}
	h.toolExecs.WithLabelValues(tool, status(err)).Inc()
	h.toolDuration.WithLabelValues(tool).Observe(sec)
}

func (h *Handler) AddEvent(ctx context.Context, kind string, data any) {
	h.events.WithLabelValues(kind).Inc()
}

func (h *Handler) Finish(ctx context.Context) error {
	return nil
}
