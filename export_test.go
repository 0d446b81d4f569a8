package quizai

import (
	"context"
	"time"
)

var (
	RepairStripCodeFence  = stripCodeFence
	HandoffToPlannerSpec  = handoffToPlannerSpec
	NewMemoryCheckpointer = newMemoryCheckpointer
)

const (
	EmptyStepResult         = emptyStepResult
	BackgroundResultsPrefix = backgroundResultsPrefix
	ReviewPrompt            = reviewPrompt
)

// SetNow replaces the clock of the workflow.
func SetNow(w *Workflow, now func() time.Time) {
	w.now = now
}

// RunningThreads returns the number of threads currently holding a lock.
func RunningThreads(w *Workflow) int {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()
	return len(w.running)
}

// NodeFunc returns the handler of a single node bound to cfg so that tests
// can drive one node without the engine.
func (w *Workflow) NodeFunc(cfg Config, id NodeID, sets ...ToolSet) (NodeFunc, error) {
	r := &runner{
		Workflow: w,
		threadID: "test-thread",
		cfg:      cfg,
		toolSets: map[NodeID][]ToolSet{id: sets},
	}
	return r.node(id)
}

// NodeContext marks ctx as executing node, optionally with a resume value.
func NodeContext(ctx context.Context, node NodeID, resume *string) context.Context {
	ctx = withNode(ctx, node)
	if resume != nil {
		ctx = withResumeValue(ctx, node, *resume)
	}
	return ctx
}

// WithEventCollector attaches an event hook to ctx for single node tests.
func WithEventCollector(ctx context.Context, threadID string, hook EventHook) context.Context {
	return withEmitter(ctx, &emitter{threadID: threadID, hook: hook})
}
