package quizai

import "context"

// EventType is the kind of an event streamed to the caller.
type EventType string

const (
	// EventMessageChunk is a piece of streamed model output.
	EventMessageChunk EventType = "message_chunk"
	// EventMessage is a complete message appended to the conversation.
	EventMessage EventType = "message"
	// EventToolCalls lists tool calls requested by a worker.
	EventToolCalls EventType = "tool_calls"
	// EventToolCallResult carries the result of one tool call.
	EventToolCallResult EventType = "tool_call_result"
	// EventInterrupt asks the caller for human input.
	EventInterrupt EventType = "interrupt"
	// EventFinish is always the last event of a Run or Resume call.
	EventFinish EventType = "finish"
)

// Outcome tells how a Run or Resume call ended.
type Outcome string

const (
	OutcomeReport      Outcome = "report"
	OutcomeNoReport    Outcome = "no_report"
	OutcomeInterrupted Outcome = "interrupted"
)

// Event is one entry of the stream produced by the workflow.
type Event struct {
	Type     EventType `json:"-"`
	ThreadID string    `json:"thread_id"`
	Agent    NodeID    `json:"agent,omitempty"`
	ID       string    `json:"id,omitempty"`

	Role    Role   `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`

	ToolCalls  []*FunctionCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`

	Options      []InterruptOption `json:"options,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Outcome      Outcome           `json:"outcome,omitempty"`
}

// EventHook receives events in order. Returning an error aborts the call.
type EventHook func(ctx context.Context, ev *Event) error

func defaultEventHook(ctx context.Context, ev *Event) error {
	return nil
}

type eventHookKey struct{}

func withEmitter(ctx context.Context, e *emitter) context.Context {
	return context.WithValue(ctx, eventHookKey{}, e)
}

// emitter stamps thread and agent information on events before handing them
// to the hook.
type emitter struct {
	threadID string
	hook     EventHook
}

func emitterFrom(ctx context.Context) *emitter {
	if e, ok := ctx.Value(eventHookKey{}).(*emitter); ok {
		return e
	}
	return &emitter{hook: defaultEventHook}
}

// Emit sends an event to the hook of the current call. Nodes use it for
// streaming output that is not part of the state update.
func Emit(ctx context.Context, ev *Event) error {
	e := emitterFrom(ctx)
	ev.ThreadID = e.threadID
	if ev.Agent == "" {
		if node, ok := NodeFromContext(ctx); ok {
			ev.Agent = node
		}
	}
	return e.hook(ctx, ev)
}
