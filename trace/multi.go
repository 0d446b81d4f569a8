package trace

import (
	"context"
	"errors"
)

// Multi returns a Handler forwarding every call to handlers. Each handler
// sees only the contexts it returned itself, so two Recorders never read
// each other's spans.
func Multi(handlers ...Handler) Handler {
	return fanout(handlers)
}

type fanout []Handler

// branchesKey holds the per-handler contexts of a fanout.
type branchesKey struct{}

func (f fanout) branches(ctx context.Context) []context.Context {
	if b, ok := ctx.Value(branchesKey{}).([]context.Context); ok && len(b) == len(f) {
		return b
	}
	b := make([]context.Context, len(f))
	for i := range b {
		b[i] = ctx
	}
	return b
}

// start calls fn for every handler with its own branch and stores the
// returned contexts in ctx.
func (f fanout) start(ctx context.Context, fn func(h Handler, branch context.Context) context.Context) context.Context {
	parents := f.branches(ctx)
	next := make([]context.Context, len(f))
	for i, h := range f {
		next[i] = fn(h, parents[i])
	}
	return context.WithValue(ctx, branchesKey{}, next)
}

func (f fanout) each(ctx context.Context, fn func(h Handler, branch context.Context)) {
	for i, branch := range f.branches(ctx) {
		fn(f[i], branch)
	}
}

func (f fanout) StartRun(ctx context.Context, threadID string) context.Context {
	return f.start(ctx, func(h Handler, c context.Context) context.Context { return h.StartRun(c, threadID) })
}

func (f fanout) EndRun(ctx context.Context, err error) {
	f.each(ctx, func(h Handler, c context.Context) { h.EndRun(c, err) })
}

func (f fanout) StartNode(ctx context.Context, node string) context.Context {
	return f.start(ctx, func(h Handler, c context.Context) context.Context { return h.StartNode(c, node) })
}

func (f fanout) EndNode(ctx context.Context, next string, err error) {
	f.each(ctx, func(h Handler, c context.Context) { h.EndNode(c, next, err) })
}

func (f fanout) StartLLMCall(ctx context.Context) context.Context {
	return f.start(ctx, func(h Handler, c context.Context) context.Context { return h.StartLLMCall(c) })
}

func (f fanout) EndLLMCall(ctx context.Context, data *LLMCallData, err error) {
	f.each(ctx, func(h Handler, c context.Context) { h.EndLLMCall(c, data, err) })
}

func (f fanout) StartToolExec(ctx context.Context, toolName string, args map[string]any) context.Context {
	return f.start(ctx, func(h Handler, c context.Context) context.Context { return h.StartToolExec(c, toolName, args) })
}

func (f fanout) EndToolExec(ctx context.Context, result map[string]any, err error) {
	f.each(ctx, func(h Handler, c context.Context) { h.EndToolExec(c, result, err) })
}

func (f fanout) AddEvent(ctx context.Context, kind string, data any) {
	f.each(ctx, func(h Handler, c context.Context) { h.AddEvent(c, kind, data) })
}

// Finish finishes every handler and joins their errors.
func (f fanout) Finish(ctx context.Context) error {
	var errs []error
	f.each(ctx, func(h Handler, c context.Context) {
		if err := h.Finish(c); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
