package quizai

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
)

var (
	promptScope   = ctxlog.NewScope("quizai_prompt", ctxlog.EnabledBy("QUIZAI_LOGGING_PROMPT"))
	responseScope = ctxlog.NewScope("quizai_response", ctxlog.EnabledBy("QUIZAI_LOGGING_RESPONSE"))
)

// LoggerFromContext returns the logger carried by ctx, or ctxlog's default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return ctxlog.From(ctx)
}

type resumeKey struct{}

type resumeValue struct {
	node  NodeID
	value string
}

func withResumeValue(ctx context.Context, node NodeID, value string) context.Context {
	return context.WithValue(ctx, resumeKey{}, resumeValue{node: node, value: value})
}

// ResumeValue returns the value supplied by Resume for the node that is
// currently executing. ok is false on a fresh execution.
func ResumeValue(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(resumeKey{}).(resumeValue)
	if !ok {
		return "", false
	}
	if cur, ok := ctx.Value(nodeKey{}).(NodeID); ok && cur != v.node {
		return "", false
	}
	return v.value, true
}

type nodeKey struct{}

func withNode(ctx context.Context, node NodeID) context.Context {
	return context.WithValue(ctx, nodeKey{}, node)
}

// NodeFromContext returns the node currently executing, if any.
func NodeFromContext(ctx context.Context) (NodeID, bool) {
	v, ok := ctx.Value(nodeKey{}).(NodeID)
	return v, ok
}
