// Package openai implements quizai.LLMClient on the OpenAI chat completion
// API. Any OpenAI compatible endpoint can be used through WithBaseURL.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

var (
	openaiPromptScope   = ctxlog.NewScope("openai_prompt", ctxlog.EnabledBy("QUIZAI_LOGGING_OPENAI_PROMPT"))
	openaiResponseScope = ctxlog.NewScope("openai_response", ctxlog.EnabledBy("QUIZAI_LOGGING_OPENAI_RESPONSE"))
)

var ErrNoChoice = goerr.New("no choice in openai response")

// generationParameters represents the parameters for text generation.
type generationParameters struct {
	// Temperature controls randomness in the output.
	Temperature float32

	// TopP controls diversity via nucleus sampling.
	TopP float32

	// MaxTokens limits the number of tokens to generate. Zero leaves the
	// provider default.
	MaxTokens int

	// ReasoningEffort tunes reasoning models ("low", "medium", "high").
	ReasoningEffort string
}

// Client is a stateless client for the OpenAI chat completion API.
type Client struct {
	api apiClient

	model   string
	baseURL string
	params  generationParameters
}

var _ quizai.LLMClient = (*Client)(nil)

const DefaultModel = "gpt-4o"

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the model. See default model in [DefaultModel].
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.model = modelName
	}
}

// WithBaseURL points the client to an OpenAI compatible endpoint such as a
// proxy or a self-hosted server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTemperature sets the temperature parameter.
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.params.Temperature = temp
	}
}

// WithTopP sets the top_p parameter.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.params.TopP = topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Client) {
		c.params.MaxTokens = maxTokens
	}
}

// WithReasoningEffort sets reasoning_effort for reasoning models.
func WithReasoningEffort(effort string) Option {
	return func(c *Client) {
		c.params.ReasoningEffort = effort
	}
}

// New creates a client. apiKey may be empty only when a base URL of a
// server without authentication is given.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		model: DefaultModel,
	}
	for _, opt := range options {
		opt(client)
	}

	if apiKey == "" && client.baseURL == "" {
		return nil, goerr.New("api key is required for openai")
	}

	cfg := openai.DefaultConfig(apiKey)
	if client.baseURL != "" {
		cfg.BaseURL = client.baseURL
	}
	client.api = &realAPIClient{client: openai.NewClientWithConfig(cfg)}

	ctxlog.From(ctx).Debug("openai client created", "model", client.model, "base_url", client.baseURL)
	return client, nil
}

func (c *Client) createRequest(req *quizai.Request, stream bool) (openai.ChatCompletionRequest, error) {
	out := openai.ChatCompletionRequest{
		Model:           c.model,
		Messages:        convertMessages(req.Messages),
		Temperature:     c.params.Temperature,
		TopP:            c.params.TopP,
		ReasoningEffort: c.params.ReasoningEffort,
		Stream:          stream,
	}
	if c.params.MaxTokens > 0 {
		out.MaxCompletionTokens = c.params.MaxTokens
	}

	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, convertTool(spec))
	}

	if req.ResponseSchema != nil {
		format, err := convertResponseFormat(req.ResponseSchema)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		out.ResponseFormat = format
	}

	return out, nil
}

func (c *Client) logPrompt(ctx context.Context, req openai.ChatCompletionRequest) {
	logger := ctxlog.From(ctx, openaiPromptScope)
	if !logger.Enabled(ctx, slog.LevelInfo) {
		return
	}
	logger.Info("OpenAI prompt",
		"model", req.Model,
		"messages", req.Messages,
		"tools", len(req.Tools),
		"stream", req.Stream,
	)
}

// Generate sends one chat completion request.
func (c *Client) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	openaiReq, err := c.createRequest(req, false)
	if err != nil {
		return nil, err
	}
	c.logPrompt(ctx, openaiReq)

	resp, err := c.api.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion", goerr.V("model", c.model))
	}
	if len(resp.Choices) == 0 {
		return nil, goerr.Wrap(ErrNoChoice, "empty response", goerr.V("model", c.model))
	}

	response, err := convertResponseMessage(resp.Choices[0].Message)
	if err != nil {
		return nil, err
	}
	response.InputToken = resp.Usage.PromptTokens
	response.OutputToken = resp.Usage.CompletionTokens

	ctxlog.From(ctx, openaiResponseScope).Info("OpenAI response",
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"texts", response.Texts,
		"function_calls", response.FunctionCalls,
	)
	return response, nil
}

// Stream sends a streaming chat completion request and calls fn for each
// text delta.
func (c *Client) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	openaiReq, err := c.createRequest(req, true)
	if err != nil {
		return nil, err
	}
	openaiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	c.logPrompt(ctx, openaiReq)

	stream, err := c.api.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion stream", goerr.V("model", c.model))
	}
	defer stream.Close()

	response := &quizai.Response{}
	acc := newToolCallAccumulator()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to receive stream chunk", goerr.V("model", c.model))
		}

		if chunk.Usage != nil {
			response.InputToken = chunk.Usage.PromptTokens
			response.OutputToken = chunk.Usage.CompletionTokens
		}

		for _, choice := range chunk.Choices {
			if text := choice.Delta.Content; text != "" {
				response.Texts = append(response.Texts, text)
				if err := fn(text); err != nil {
					return nil, err
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc.add(tc)
			}
		}
	}

	calls, err := acc.functionCalls()
	if err != nil {
		return nil, err
	}
	response.FunctionCalls = calls

	ctxlog.From(ctx, openaiResponseScope).Info("OpenAI stream response",
		"model", c.model,
		"chunks", len(response.Texts),
		"function_calls", response.FunctionCalls,
	)
	return response, nil
}

// toolCallAccumulator rebuilds tool calls that arrive split across stream
// deltas. Deltas are matched by index.
type toolCallAccumulator struct {
	calls map[int]*openai.ToolCall
	last  int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: map[int]*openai.ToolCall{}, last: -1}
}

func (a *toolCallAccumulator) add(delta openai.ToolCall) {
	idx := a.last
	switch {
	case delta.Index != nil:
		idx = *delta.Index
	case delta.ID != "" || idx < 0:
		idx = a.last + 1
	}
	a.last = idx

	cur, ok := a.calls[idx]
	if !ok {
		cur = &openai.ToolCall{Type: openai.ToolTypeFunction}
		a.calls[idx] = cur
	}
	if delta.ID != "" {
		cur.ID = delta.ID
	}
	if delta.Function.Name != "" {
		cur.Function.Name = delta.Function.Name
	}
	cur.Function.Arguments += delta.Function.Arguments
}

func (a *toolCallAccumulator) functionCalls() ([]*quizai.FunctionCall, error) {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var out []*quizai.FunctionCall
	for _, idx := range indexes {
		call, err := convertToolCall(*a.calls[idx])
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, nil
}
