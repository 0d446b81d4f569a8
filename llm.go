package quizai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// LLMType selects a configured model family for an agent.
type LLMType string

const (
	LLMTypeBasic     LLMType = "basic"
	LLMTypeReasoning LLMType = "reasoning"
	LLMTypeCode      LLMType = "code"
	LLMTypeVision    LLMType = "vision"
)

// LLMTypes lists every supported LLM type.
func LLMTypes() []LLMType {
	return []LLMType{LLMTypeBasic, LLMTypeReasoning, LLMTypeCode, LLMTypeVision}
}

// Request is a single generation request.
type Request struct {
	Messages []Message

	// Tools enables tool calling.
	Tools []ToolSpec

	// ResponseSchema asks for structured output matching the schema.
	ResponseSchema *Parameter
}

// Response is the result of a generation request.
type Response struct {
	Texts         []string
	FunctionCalls []*FunctionCall

	InputToken  int
	OutputToken int
}

// Text joins all text parts of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Texts, "")
}

// LLMClient is the generation capability consumed by the workflow.
type LLMClient interface {
	// Generate returns the whole response at once. Free text, structured
	// output and tool calling are selected by the request fields.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream calls fn for each text chunk as it arrives and returns the
	// accumulated response.
	Stream(ctx context.Context, req *Request, fn func(chunk string) error) (*Response, error)
}

// LLMRegistry maps LLM types to clients. It is built once at startup and
// passed to the workflow.
type LLMRegistry struct {
	mu      sync.RWMutex
	clients map[LLMType]LLMClient
}

// NewLLMRegistry creates an empty registry.
func NewLLMRegistry() *LLMRegistry {
	return &LLMRegistry{clients: make(map[LLMType]LLMClient)}
}

// Register sets the client for the type, replacing any previous one.
func (r *LLMRegistry) Register(t LLMType, client LLMClient) *LLMRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[t] = client
	return r
}

// Get returns the client for the type.
func (r *LLMRegistry) Get(t LLMType) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[t]
	if !ok || client == nil {
		return nil, goerr.Wrap(ErrLLMNotConfigured, "no client for llm type", goerr.V("llm_type", t))
	}
	return client, nil
}

// collaboratorError wraps a failure of an external capability so that it
// matches both ErrCollaborator and the original cause.
func collaboratorError(err error, msg string, opts ...goerr.Option) error {
	opts = append(opts, goerr.Tag(TagCollaborator))
	return goerr.Wrap(errors.Join(ErrCollaborator, err), msg, opts...)
}
