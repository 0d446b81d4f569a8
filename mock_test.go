package quizai_test

import (
	"context"
	"encoding/json"
	"sync"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

type handlerFunc func(ctx context.Context, req *quizai.Request) (*quizai.Response, error)

// llmMock answers each request with the handler registered for the node that
// sent it, so one mock can drive a whole thread.
type llmMock struct {
	mu       sync.Mutex
	handlers map[quizai.NodeID][]handlerFunc
	calls    []quizai.NodeID
	requests map[quizai.NodeID][]*quizai.Request
	streamed map[quizai.NodeID]int
}

func newLLMMock() *llmMock {
	return &llmMock{
		handlers: map[quizai.NodeID][]handlerFunc{},
		requests: map[quizai.NodeID][]*quizai.Request{},
		streamed: map[quizai.NodeID]int{},
	}
}

// on queues handlers for node. The last handler is reused once the queue is
// drained.
func (m *llmMock) on(node quizai.NodeID, fns ...handlerFunc) *llmMock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[node] = append(m.handlers[node], fns...)
	return m
}

func (m *llmMock) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	node, _ := quizai.NodeFromContext(ctx)

	m.mu.Lock()
	m.calls = append(m.calls, node)
	m.requests[node] = append(m.requests[node], req)
	queue := m.handlers[node]
	var fn handlerFunc
	if len(queue) > 0 {
		fn = queue[0]
		if len(queue) > 1 {
			m.handlers[node] = queue[1:]
		}
	}
	m.mu.Unlock()

	if fn == nil {
		return nil, goerr.New("unexpected llm call", goerr.V("node", node))
	}
	return fn(ctx, req)
}

func (m *llmMock) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	node, _ := quizai.NodeFromContext(ctx)
	m.mu.Lock()
	m.streamed[node]++
	m.mu.Unlock()

	resp, err := m.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, text := range resp.Texts {
		if err := fn(text); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (m *llmMock) Calls() []quizai.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]quizai.NodeID(nil), m.calls...)
}

func (m *llmMock) Requests(node quizai.NodeID) []*quizai.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*quizai.Request(nil), m.requests[node]...)
}

func (m *llmMock) Streamed(node quizai.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamed[node]
}

func text(s ...string) handlerFunc {
	return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
		return &quizai.Response{Texts: s}, nil
	}
}

func fail(err error) handlerFunc {
	return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
		return nil, err
	}
}

func handoff(topic, locale string) handlerFunc {
	return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
		return &quizai.Response{
			FunctionCalls: []*quizai.FunctionCall{
				{
					ID:   "call-handoff",
					Name: "handoff_to_planner",
					Arguments: map[string]any{
						"research_topic": topic,
						"locale":         locale,
					},
				},
			},
		}, nil
	}
}

func callTool(name string, args map[string]any) handlerFunc {
	return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
		return &quizai.Response{
			FunctionCalls: []*quizai.FunctionCall{{Name: name, Arguments: args}},
		}, nil
	}
}

func planJSON(p quizai.Plan) string {
	raw, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func researchPlan(steps ...quizai.Step) quizai.Plan {
	return quizai.Plan{
		Locale:           "en-US",
		HasEnoughContext: false,
		Thought:          "need to look things up",
		Title:            "Quantum computing overview",
		Steps:            steps,
	}
}

func researchStep(title string) quizai.Step {
	return quizai.Step{Title: title, Description: "collect data about " + title, StepType: quizai.StepTypeResearch}
}

func processingStep(title string) quizai.Step {
	return quizai.Step{Title: title, Description: "compute " + title, StepType: quizai.StepTypeProcessing}
}

type searcherMock struct {
	mu      sync.Mutex
	queries []string
	limits  []int
	results []*quizai.SearchResult
	err     error
}

func (s *searcherMock) Search(ctx context.Context, query string, maxResults int) ([]*quizai.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, maxResults)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type toolMock struct {
	spec  quizai.ToolSpec
	mu    sync.Mutex
	args  []map[string]any
	runFn func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *toolMock) Spec() quizai.ToolSpec {
	return t.spec
}

func (t *toolMock) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	t.mu.Lock()
	t.args = append(t.args, args)
	t.mu.Unlock()
	return t.runFn(ctx, args)
}

type toolSetMock struct {
	specs []quizai.ToolSpec
	runFn func(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

func (s *toolSetMock) Specs(ctx context.Context) ([]quizai.ToolSpec, error) {
	return s.specs, nil
}

func (s *toolSetMock) Run(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return s.runFn(ctx, name, args)
}

// eventRecorder collects events delivered to the hook.
type eventRecorder struct {
	mu     sync.Mutex
	events []*quizai.Event
}

func (r *eventRecorder) hook(ctx context.Context, ev *quizai.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) Types() []quizai.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]quizai.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *eventRecorder) Of(t quizai.EventType) []*quizai.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*quizai.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
