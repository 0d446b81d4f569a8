// Package claude implements quizai.LLMClient on the Anthropic messages API.
package claude

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

var (
	claudePromptScope   = ctxlog.NewScope("claude_prompt", ctxlog.EnabledBy("QUIZAI_LOGGING_CLAUDE_PROMPT"))
	claudeResponseScope = ctxlog.NewScope("claude_response", ctxlog.EnabledBy("QUIZAI_LOGGING_CLAUDE_RESPONSE"))
)

type generationParameters struct {
	// Temperature controls randomness in the output. Nil leaves the
	// provider default.
	Temperature *float64

	// MaxTokens limits the number of tokens to generate.
	MaxTokens int64
}

// Client is a stateless client for the Claude messages API.
type Client struct {
	api apiClient

	model   string
	baseURL string
	params  generationParameters
}

var _ quizai.LLMClient = (*Client)(nil)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 8192
)

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the model. See default model in [DefaultModel].
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL sets a custom endpoint of the messages API.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTemperature sets the temperature parameter.
func WithTemperature(temp float64) Option {
	return func(c *Client) {
		c.params.Temperature = &temp
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
// Default: [DefaultMaxTokens]
func WithMaxTokens(maxTokens int64) Option {
	return func(c *Client) {
		c.params.MaxTokens = maxTokens
	}
}

// New creates a client for the Claude API.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.New("api key is required for claude")
	}

	client := &Client{
		model:  DefaultModel,
		params: generationParameters{MaxTokens: DefaultMaxTokens},
	}
	for _, opt := range options {
		opt(client)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if client.baseURL != "" {
		opts = append(opts, option.WithBaseURL(client.baseURL))
	}
	newClient := anthropic.NewClient(opts...)
	client.api = &realAPIClient{client: &newClient}

	ctxlog.From(ctx).Debug("claude client created", "model", client.model)
	return client, nil
}

func (c *Client) createRequest(req *quizai.Request) (anthropic.MessageNewParams, error) {
	system, messages := convertMessages(req.Messages)

	if req.ResponseSchema != nil {
		instruction, err := schemaInstruction(req.ResponseSchema)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		system = append(system, anthropic.TextBlockParam{Text: instruction})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.params.MaxTokens,
		System:    system,
		Messages:  messages,
	}
	if c.params.Temperature != nil {
		params.Temperature = anthropic.Float(*c.params.Temperature)
	}
	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, convertTool(spec))
	}
	return params, nil
}

// Generate sends one messages request.
func (c *Client) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	params, err := c.createRequest(req)
	if err != nil {
		return nil, err
	}
	ctxlog.From(ctx, claudePromptScope).Info("Claude prompt", "model", c.model, "system", params.System, "messages", params.Messages)

	resp, err := c.api.MessagesNew(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message", goerr.V("model", c.model))
	}

	response, err := convertResponse(resp)
	if err != nil {
		return nil, err
	}
	ctxlog.From(ctx, claudeResponseScope).Info("Claude response",
		"model", c.model,
		"stop_reason", resp.StopReason,
		"texts", response.Texts,
		"function_calls", response.FunctionCalls,
	)
	return response, nil
}

// Stream sends a streaming messages request and calls fn for each text
// delta. The final message is rebuilt from the events.
func (c *Client) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	params, err := c.createRequest(req)
	if err != nil {
		return nil, err
	}
	ctxlog.From(ctx, claudePromptScope).Info("Claude prompt", "model", c.model, "stream", true, "messages", params.Messages)

	stream := c.api.MessagesNewStreaming(ctx, params)
	if stream == nil {
		return nil, goerr.New("failed to create message stream", goerr.V("model", c.model))
	}
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, goerr.Wrap(err, "failed to accumulate stream event", goerr.V("model", c.model))
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := fn(text.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, goerr.Wrap(err, "message stream failed", goerr.V("model", c.model))
	}

	response, err := convertResponse(&message)
	if err != nil {
		return nil, err
	}
	ctxlog.From(ctx, claudeResponseScope).Info("Claude stream response",
		"model", c.model,
		"texts", response.Texts,
		"function_calls", response.FunctionCalls,
	)
	return response, nil
}
