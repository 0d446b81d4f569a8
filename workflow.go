package quizai

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lpf0528/quiz-ai/prompt"
	"github.com/lpf0528/quiz-ai/trace"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Workflow runs research threads through the node graph. One Workflow is
// shared by all threads; each thread is serialized by its own lock.
type Workflow struct {
	llms         *LLMRegistry
	searcher     Searcher
	checkpointer Checkpointer
	trace        trace.Handler
	logger       *slog.Logger

	researcherTools []Tool
	coderTools      []Tool
	loopLimit       int

	now func() time.Time

	// running holds the threads with a Run, Resume or DeleteThread in flight.
	runningMu sync.Mutex
	running   map[string]struct{}
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger. Default is discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithSearcher sets the search engine used by the background investigator.
func WithSearcher(searcher Searcher) Option {
	return func(w *Workflow) {
		w.searcher = searcher
	}
}

// WithCheckpointer sets the checkpoint store. Default keeps checkpoints in
// memory.
func WithCheckpointer(cp Checkpointer) Option {
	return func(w *Workflow) {
		w.checkpointer = cp
	}
}

// WithTrace sets the trace handler. Use trace.Multi to combine several.
func WithTrace(h trace.Handler) Option {
	return func(w *Workflow) {
		w.trace = h
	}
}

// WithResearcherTools adds tools available to the researcher.
func WithResearcherTools(tools ...Tool) Option {
	return func(w *Workflow) {
		w.researcherTools = append(w.researcherTools, tools...)
	}
}

// WithCoderTools adds tools available to the coder.
func WithCoderTools(tools ...Tool) Option {
	return func(w *Workflow) {
		w.coderTools = append(w.coderTools, tools...)
	}
}

// WithLoopLimit sets the maximum tool-calling rounds of a worker step.
func WithLoopLimit(limit int) Option {
	return func(w *Workflow) {
		w.loopLimit = limit
	}
}

// New creates a workflow with the given LLM registry.
func New(llms *LLMRegistry, options ...Option) *Workflow {
	w := &Workflow{
		llms:         llms,
		checkpointer: newMemoryCheckpointer(),
		trace:        trace.Multi(),
		logger:       slog.New(slog.DiscardHandler),
		loopLimit:    DefaultLoopLimit,
		now:          time.Now,
		running:      make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(w)
	}

	w.logger.Info("workflow created",
		"has_searcher", w.searcher != nil,
		"researcher_tools", len(w.researcherTools),
		"coder_tools", len(w.coderTools),
		"loop_limit", w.loopLimit,
	)
	return w
}

// RunOption configures a single Run or Resume call.
type RunOption func(*runConfig)

type runConfig struct {
	eventHook EventHook
	toolSets  map[NodeID][]ToolSet
}

// WithEventHook receives the events of the call in order.
func WithEventHook(hook EventHook) RunOption {
	return func(c *runConfig) {
		c.eventHook = hook
	}
}

// WithToolSets adds tool sets, such as MCP servers, to a worker for this call.
func WithToolSets(node NodeID, sets ...ToolSet) RunOption {
	return func(c *runConfig) {
		c.toolSets[node] = append(c.toolSets[node], sets...)
	}
}

func newRunConfig(options []RunOption) *runConfig {
	c := &runConfig{
		eventHook: defaultEventHook,
		toolSets:  map[NodeID][]ToolSet{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Result is the outcome of a Run or Resume call.
type Result struct {
	ThreadID    string
	Outcome     Outcome
	State       *State
	FinalReport string

	// Interrupt is set when Outcome is OutcomeInterrupted.
	Interrupt *Interrupt
}

// Run starts a new turn of the thread with the given messages. Messages of
// earlier turns are kept; every other state field starts fresh.
func (w *Workflow) Run(ctx context.Context, threadID string, messages []Message, cfg Config, options ...RunOption) (result *Result, err error) {
	if threadID == "" {
		return nil, goerr.Wrap(ErrInvalidThreadID, "thread id is empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid config", goerr.V("thread_id", threadID))
	}

	unlock, err := w.lock(threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, end := w.begin(ctx, threadID)
	defer func() { end(err) }()

	history := messages
	seq := 0
	prev, err := w.checkpointer.Load(ctx, threadID)
	switch {
	case err == nil:
		if prev.Suspended() {
			return nil, goerr.Wrap(ErrThreadSuspended, "thread waits for resume",
				goerr.V("thread_id", threadID), goerr.V("node", prev.Interrupt.Node))
		}
		seq = prev.Seq
		history = append(append([]Message{}, prev.State.Messages...), messages...)
	case errors.Is(err, ErrCheckpointNotFound):
	default:
		return nil, goerr.Wrap(err, "failed to load checkpoint", goerr.V("thread_id", threadID))
	}

	cp := &Checkpoint{
		ThreadID:  threadID,
		Seq:       seq + 1,
		Next:      NodeCoordinator,
		State:     NewState(history, cfg),
		Config:    cfg,
		CreatedAt: w.now(),
	}
	if err := w.checkpointer.Save(ctx, cp); err != nil {
		return nil, goerr.Wrap(err, "failed to save checkpoint", goerr.V("thread_id", threadID))
	}

	return w.execute(ctx, cp, newRunConfig(options), nil)
}

// Resume re-runs the suspended node of the thread with value available
// through ResumeValue.
func (w *Workflow) Resume(ctx context.Context, threadID string, value string, options ...RunOption) (result *Result, err error) {
	if threadID == "" {
		return nil, goerr.Wrap(ErrInvalidThreadID, "thread id is empty")
	}

	unlock, err := w.lock(threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, end := w.begin(ctx, threadID)
	defer func() { end(err) }()

	cp, err := w.checkpointer.Load(ctx, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load checkpoint", goerr.V("thread_id", threadID))
	}
	if !cp.Suspended() {
		return nil, goerr.Wrap(ErrNotSuspended, "nothing to resume", goerr.V("thread_id", threadID), goerr.V("next", cp.Next))
	}

	LoggerFromContext(ctx).Info("resuming thread", "node", cp.Interrupt.Node, "resume_value", value)
	return w.execute(ctx, cp, newRunConfig(options), &value)
}

// Checkpoint returns the latest checkpoint of the thread.
func (w *Workflow) Checkpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	return w.checkpointer.Load(ctx, threadID)
}

// History returns every checkpoint of the thread, oldest first.
func (w *Workflow) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	return w.checkpointer.List(ctx, threadID)
}

// DeleteThread discards the thread. It fails with ErrThreadBusy while the
// thread is running.
func (w *Workflow) DeleteThread(ctx context.Context, threadID string) error {
	unlock, err := w.lock(threadID)
	if err != nil {
		return err
	}
	defer unlock()
	return w.checkpointer.Delete(ctx, threadID)
}

func (w *Workflow) lock(threadID string) (func(), error) {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()
	if _, ok := w.running[threadID]; ok {
		return nil, goerr.Wrap(ErrThreadBusy, "thread is locked", goerr.V("thread_id", threadID))
	}
	w.running[threadID] = struct{}{}

	return func() {
		w.runningMu.Lock()
		delete(w.running, threadID)
		w.runningMu.Unlock()
	}, nil
}

// begin attaches the logger and the run span to ctx. The returned function
// closes the span and flushes the trace.
func (w *Workflow) begin(ctx context.Context, threadID string) (context.Context, func(error)) {
	logger := w.logger.With("thread_id", threadID, "request_id", uuid.NewString())
	ctx = ctxlog.With(ctx, logger)
	ctx = w.trace.StartRun(ctx, threadID)

	return ctx, func(err error) {
		w.trace.EndRun(ctx, err)
		if ferr := w.trace.Finish(ctx); ferr != nil {
			logger.Warn("failed to finish trace", "error", ferr)
		}
	}
}

type runner struct {
	*Workflow
	threadID string
	cfg      Config
	toolSets map[NodeID][]ToolSet
}

func (r *runner) node(id NodeID) (NodeFunc, error) {
	switch id {
	case NodeCoordinator:
		return r.coordinator, nil
	case NodeBackgroundInvestigator:
		return r.backgroundInvestigator, nil
	case NodePlanner:
		return r.planner, nil
	case NodeHumanFeedback:
		return r.humanFeedback, nil
	case NodeResearchTeam:
		return r.researchTeam, nil
	case NodeResearcher:
		return r.researcher, nil
	case NodeCoder:
		return r.coder, nil
	case NodeReporter:
		return r.reporter, nil
	default:
		return nil, goerr.Wrap(ErrUnknownNode, "no handler for node", goerr.V("node", id))
	}
}

func (r *runner) promptData(st *State) prompt.Data {
	return prompt.Data{
		CurrentTime: r.now().Format(prompt.TimeFormat),
		Locale:      st.Locale,
		MaxStepNum:  r.cfg.MaxStepNum,
		ReportStyle: string(r.cfg.ReportStyle),
	}
}

// execute interprets the graph from cp.Next until the end node or an
// interrupt. Every transition is checkpointed before the next node starts.
func (w *Workflow) execute(ctx context.Context, cp *Checkpoint, rc *runConfig, resume *string) (*Result, error) {
	r := &runner{Workflow: w, threadID: cp.ThreadID, cfg: cp.Config, toolSets: rc.toolSets}
	ctx = withEmitter(ctx, &emitter{threadID: cp.ThreadID, hook: rc.eventHook})
	logger := LoggerFromContext(ctx)

	limit := cp.Config.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	st := cp.State
	last := cp.Node
	node := cp.Next

	for steps := 0; node != NodeEnd; steps++ {
		if steps >= limit {
			return nil, goerr.Wrap(ErrRecursionLimit, "too many node executions",
				goerr.V("limit", limit), goerr.V("node", node), goerr.V("thread_id", cp.ThreadID))
		}

		fn, err := r.node(node)
		if err != nil {
			return nil, err
		}

		nodeCtx := withNode(ctx, node)
		nodeCtx = ctxlog.With(nodeCtx, logger.With("node", node))
		if resume != nil {
			nodeCtx = withResumeValue(nodeCtx, node, *resume)
			resume = nil
		}
		nodeCtx = w.trace.StartNode(nodeCtx, string(node))

		cmd, err := fn(nodeCtx, st.Clone())
		if err == nil && cmd == nil {
			err = goerr.New("node returned no command")
		}
		if err != nil {
			w.trace.EndNode(nodeCtx, "", err)
			return nil, goerr.Wrap(err, "node failed", goerr.V("node", node), goerr.V("thread_id", cp.ThreadID))
		}

		if cmd.Interrupt != nil {
			return w.suspend(ctx, nodeCtx, cp, st, node, last, cmd.Interrupt)
		}

		next := cmd.Goto
		if next == "" {
			err := goerr.Wrap(ErrUnknownNode, "node returned no destination", goerr.V("node", node))
			w.trace.EndNode(nodeCtx, "", err)
			return nil, err
		}

		st.Apply(cmd.Update)
		cp = &Checkpoint{
			ThreadID:  cp.ThreadID,
			Seq:       cp.Seq + 1,
			Node:      node,
			Next:      next,
			State:     st,
			Config:    cp.Config,
			CreatedAt: w.now(),
		}
		if err := w.checkpointer.Save(ctx, cp); err != nil {
			w.trace.EndNode(nodeCtx, string(next), err)
			return nil, goerr.Wrap(err, "failed to save checkpoint", goerr.V("node", node), goerr.V("thread_id", cp.ThreadID))
		}
		w.trace.EndNode(nodeCtx, string(next), nil)

		if cmd.Update != nil {
			for _, msg := range cmd.Update.Messages {
				if err := Emit(ctx, &Event{
					Type:    EventMessage,
					Agent:   node,
					ID:      uuid.NewString(),
					Role:    msg.Role,
					Content: msg.Content,
					Name:    msg.Name,
				}); err != nil {
					return nil, goerr.Wrap(err, "event hook failed", goerr.V("node", node))
				}
			}
		}

		last, node = node, next
	}

	result := &Result{
		ThreadID: cp.ThreadID,
		Outcome:  OutcomeNoReport,
		State:    st,
	}
	if last == NodeReporter {
		result.Outcome = OutcomeReport
		result.FinalReport = st.FinalReport
	}
	logger.Info("thread finished", "outcome", result.Outcome, "last_node", last)

	if err := Emit(ctx, &Event{
		Type:         EventFinish,
		Agent:        last,
		Outcome:      result.Outcome,
		Content:      result.FinalReport,
		FinishReason: "stop",
	}); err != nil {
		return nil, goerr.Wrap(err, "event hook failed")
	}
	return result, nil
}

// suspend persists the interrupt without applying any update and reports it
// to the caller.
func (w *Workflow) suspend(ctx, nodeCtx context.Context, cp *Checkpoint, st *State, node, last NodeID, req *Interrupt) (*Result, error) {
	intr := *req
	intr.ID = uuid.NewString()
	intr.Node = node

	w.trace.AddEvent(nodeCtx, "interrupt", &intr)

	saved := &Checkpoint{
		ThreadID:  cp.ThreadID,
		Seq:       cp.Seq + 1,
		Node:      last,
		Next:      node,
		State:     st,
		Config:    cp.Config,
		Interrupt: &intr,
		CreatedAt: w.now(),
	}
	if err := w.checkpointer.Save(ctx, saved); err != nil {
		w.trace.EndNode(nodeCtx, string(node), err)
		return nil, goerr.Wrap(err, "failed to save checkpoint", goerr.V("node", node), goerr.V("thread_id", cp.ThreadID))
	}
	w.trace.EndNode(nodeCtx, string(node), nil)
	LoggerFromContext(ctx).Info("thread suspended", "node", node, "interrupt_id", intr.ID)

	if err := Emit(ctx, &Event{
		Type:         EventInterrupt,
		Agent:        node,
		ID:           intr.ID,
		Role:         RoleAssistant,
		Content:      intr.Value,
		Options:      intr.Options,
		FinishReason: "interrupt",
	}); err != nil {
		return nil, goerr.Wrap(err, "event hook failed")
	}
	if err := Emit(ctx, &Event{
		Type:         EventFinish,
		Agent:        node,
		Outcome:      OutcomeInterrupted,
		FinishReason: "interrupt",
	}); err != nil {
		return nil, goerr.Wrap(err, "event hook failed")
	}

	return &Result{
		ThreadID:  cp.ThreadID,
		Outcome:   OutcomeInterrupted,
		State:     st,
		Interrupt: &intr,
	}, nil
}
