package trace

import "context"

// Handler is the interface for trace backends.
// Implementations receive lifecycle events while a workflow thread runs
// and can record, export, or forward them as needed.
type Handler interface {
	// StartRun starts the root span of one Run or Resume call.
	StartRun(ctx context.Context, threadID string) context.Context
	// EndRun ends the root span.
	EndRun(ctx context.Context, err error)

	// StartNode starts a span for one node execution.
	StartNode(ctx context.Context, node string) context.Context
	// EndNode ends the node span. next is the node the thread moves to.
	EndNode(ctx context.Context, next string, err error)

	// StartLLMCall starts an LLM call span.
	StartLLMCall(ctx context.Context) context.Context
	// EndLLMCall ends an LLM call span with the given data.
	EndLLMCall(ctx context.Context, data *LLMCallData, err error)

	// StartToolExec starts a tool execution span.
	StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context
	// EndToolExec ends a tool execution span with the result.
	EndToolExec(ctx context.Context, result map[string]any, err error)

	// AddEvent adds an event to the current span.
	AddEvent(ctx context.Context, kind string, data any)

	// Finish completes the trace of the run started in ctx.
	Finish(ctx context.Context) error
}
