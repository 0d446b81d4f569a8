package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithRepository saves every finished trace to repo.
func WithRepository(repo Repository) Option {
	return func(r *Recorder) {
		r.repo = repo
	}
}

// WithMetadata attaches meta to every trace.
func WithMetadata(meta TraceMetadata) Option {
	return func(r *Recorder) {
		r.metadata = meta
	}
}

// Recorder builds one in-memory Trace per StartRun. It is safe to share
// between threads running concurrently.
type Recorder struct {
	mu       sync.Mutex
	traces   []*Trace
	repo     Repository
	metadata TraceMetadata
}

// New creates a Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// position is the trace and the innermost open span of a context.
type position struct {
	trace *Trace
	span  *Span
}

type positionKey struct{}

func positionFrom(ctx context.Context) position {
	p, _ := ctx.Value(positionKey{}).(position)
	return p
}

func currentSpanFrom(ctx context.Context) *Span {
	return positionFrom(ctx).span
}

// StartRun starts a trace whose root span is named after the thread.
func (r *Recorder) StartRun(ctx context.Context, threadID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	t := &Trace{
		TraceID:   uuid.Must(uuid.NewV7()).String(),
		ThreadID:  threadID,
		Metadata:  r.metadata,
		StartedAt: now,
		RootSpan: &Span{
			SpanID:    uuid.NewString(),
			Kind:      SpanKindRun,
			Name:      threadID,
			StartedAt: now,
			Status:    SpanStatusOK,
		},
	}
	r.traces = append(r.traces, t)
	return context.WithValue(ctx, positionKey{}, position{trace: t, span: t.RootSpan})
}

func (r *Recorder) EndRun(ctx context.Context, err error) {
	r.close(ctx, SpanKindRun, err, func(p position, _ *Span) {
		p.trace.EndedAt = p.span.EndedAt
	})
}

func (r *Recorder) StartNode(ctx context.Context, node string) context.Context {
	return r.open(ctx, SpanKindNode, node, func(s *Span) {
		s.Node = &NodeData{Node: node}
	})
}

func (r *Recorder) EndNode(ctx context.Context, next string, err error) {
	r.close(ctx, SpanKindNode, err, func(_ position, s *Span) {
		s.Node.Next = next
	})
}

func (r *Recorder) StartLLMCall(ctx context.Context) context.Context {
	return r.open(ctx, SpanKindLLMCall, "llm_call", nil)
}

func (r *Recorder) EndLLMCall(ctx context.Context, data *LLMCallData, err error) {
	r.close(ctx, SpanKindLLMCall, err, func(_ position, s *Span) {
		s.LLMCall = data
	})
}

func (r *Recorder) StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context {
	return r.open(ctx, SpanKindToolExec, toolName, func(s *Span) {
		s.ToolExec = &ToolExecData{ToolName: toolName, Args: args}
	})
}

func (r *Recorder) EndToolExec(ctx context.Context, result map[string]any, err error) {
	r.close(ctx, SpanKindToolExec, err, func(_ position, s *Span) {
		s.ToolExec.Result = result
		if err != nil {
			s.ToolExec.Error = err.Error()
		}
	})
}

// AddEvent appends a zero length event span to the current span.
func (r *Recorder) AddEvent(ctx context.Context, kind string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent := currentSpanFrom(ctx)
	if parent == nil {
		return
	}
	now := time.Now()
	parent.Children = append(parent.Children, &Span{
		SpanID:    uuid.NewString(),
		ParentID:  parent.SpanID,
		Kind:      SpanKindEvent,
		Name:      kind,
		StartedAt: now,
		EndedAt:   now,
		Status:    SpanStatusOK,
		Event:     &EventData{Kind: kind, Data: data},
	})
}

// Finish saves the trace of the run started in ctx when a repository is set.
func (r *Recorder) Finish(ctx context.Context) error {
	t := positionFrom(ctx).trace
	if t == nil || r.repo == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repo.Save(ctx, t)
}

// Trace returns the latest trace, or nil before the first run.
func (r *Recorder) Trace() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.traces) == 0 {
		return nil
	}
	return r.traces[len(r.traces)-1]
}

// Traces returns every trace recorded so far, oldest first.
func (r *Recorder) Traces() []*Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Trace(nil), r.traces...)
}

// open starts a child of the current span. Without a current span ctx is
// returned as is.
func (r *Recorder) open(ctx context.Context, kind SpanKind, name string, init func(s *Span)) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := positionFrom(ctx)
	if p.span == nil {
		return ctx
	}
	child := &Span{
		SpanID:    uuid.NewString(),
		ParentID:  p.span.SpanID,
		Kind:      kind,
		Name:      name,
		StartedAt: time.Now(),
		Status:    SpanStatusOK,
	}
	if init != nil {
		init(child)
	}
	p.span.Children = append(p.span.Children, child)
	p.span = child
	return context.WithValue(ctx, positionKey{}, p)
}

// close ends the current span when it has the given kind.
func (r *Recorder) close(ctx context.Context, kind SpanKind, err error, update func(p position, s *Span)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := positionFrom(ctx)
	if p.span == nil || p.span.Kind != kind {
		return
	}
	s := p.span
	s.EndedAt = time.Now()
	s.Duration = s.EndedAt.Sub(s.StartedAt)
	if err != nil {
		s.Status = SpanStatusError
		s.Error = err.Error()
	}
	if update != nil {
		update(p, s)
	}
}
