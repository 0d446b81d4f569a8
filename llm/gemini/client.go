// Package gemini implements quizai.LLMClient on the Gemini API, either
// through an API key or through Vertex AI.
package gemini

import (
	"context"
	"log/slog"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

var (
	geminiPromptScope   = ctxlog.NewScope("gemini_prompt", ctxlog.EnabledBy("QUIZAI_LOGGING_GEMINI_PROMPT"))
	geminiResponseScope = ctxlog.NewScope("gemini_response", ctxlog.EnabledBy("QUIZAI_LOGGING_GEMINI_RESPONSE"))
)

var (
	ErrMalformedFunctionCall = goerr.New("malformed function call")
	ErrProhibitedContent     = goerr.New("prohibited content")
)

// Client is a stateless client for the Gemini API.
type Client struct {
	api apiClient

	model   string
	baseURL string

	// projectID and location switch the backend to Vertex AI.
	projectID string
	location  string

	generationConfig genai.GenerateContentConfig
}

var _ quizai.LLMClient = (*Client)(nil)

// Option is a configuration option for the Gemini client.
type Option func(*Client)

// WithModel sets the model. See default model in [DefaultModel].
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithVertexAI uses Vertex AI with application default credentials instead
// of an API key.
func WithVertexAI(projectID, location string) Option {
	return func(c *Client) {
		c.projectID = projectID
		c.location = location
	}
}

// WithTemperature sets the temperature parameter for text generation.
// Range: 0.0 to 2.0
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.generationConfig.Temperature = &temp
	}
}

// WithTopP sets the top_p parameter for text generation.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.generationConfig.TopP = &topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int32) Option {
	return func(c *Client) {
		c.generationConfig.MaxOutputTokens = maxTokens
	}
}

// WithThinkingBudget sets the thinking budget. A value of -1 enables
// automatic thinking budget allocation.
func WithThinkingBudget(budget int32) Option {
	return func(c *Client) {
		c.generationConfig.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
}

// New creates a client. apiKey is required unless WithVertexAI is given.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{model: DefaultModel}
	for _, opt := range options {
		opt(client)
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if client.projectID != "" {
		if client.location == "" {
			return nil, goerr.New("location is required for vertex ai", goerr.V("project_id", client.projectID))
		}
		config = &genai.ClientConfig{
			Project:  client.projectID,
			Location: client.location,
			Backend:  genai.BackendVertexAI,
		}
	} else if apiKey == "" {
		return nil, goerr.New("api key is required for gemini")
	}
	if client.baseURL != "" {
		config.HTTPOptions.BaseURL = client.baseURL
	}

	genaiClient, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	client.api = &realAPIClient{client: genaiClient}

	ctxlog.From(ctx).Debug("gemini client created", "model", client.model, "backend", config.Backend)
	return client, nil
}

func (c *Client) createRequest(req *quizai.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := c.generationConfig
	system, contents := convertMessages(req.Messages)
	if system != nil {
		config.SystemInstruction = system
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, convertTool(spec))
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = convertParameterToSchema(req.ResponseSchema)
	}

	return contents, &config
}

func (c *Client) logPrompt(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) {
	logger := ctxlog.From(ctx, geminiPromptScope)
	if !logger.Enabled(ctx, slog.LevelInfo) {
		return
	}
	logger.Info("Gemini prompt",
		"model", c.model,
		"contents", contents,
		"system", config.SystemInstruction,
		"tools", len(config.Tools),
	)
}

// Generate sends one generate content request.
func (c *Client) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	contents, config := c.createRequest(req)
	c.logPrompt(ctx, contents, config)

	resp, err := c.api.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", c.model))
	}

	response := &quizai.Response{}
	if err := processResponse(resp, response); err != nil {
		return nil, err
	}

	ctxlog.From(ctx, geminiResponseScope).Info("Gemini response",
		"model", c.model,
		"texts", response.Texts,
		"function_calls", response.FunctionCalls,
		"input_token", response.InputToken,
		"output_token", response.OutputToken,
	)
	return response, nil
}

// Stream sends a streaming request and calls fn for each text part.
func (c *Client) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	contents, config := c.createRequest(req)
	c.logPrompt(ctx, contents, config)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	response := &quizai.Response{}
	for chunk := range c.api.GenerateContentStream(ctx, c.model, contents, config) {
		if chunk.Err != nil {
			return nil, goerr.Wrap(chunk.Err, "failed to receive stream chunk", goerr.V("model", c.model))
		}

		before := len(response.Texts)
		if err := processResponse(chunk.Resp, response); err != nil {
			return nil, err
		}
		for _, text := range response.Texts[before:] {
			if err := fn(text); err != nil {
				return nil, err
			}
		}
	}

	ctxlog.From(ctx, geminiResponseScope).Info("Gemini stream response",
		"model", c.model,
		"chunks", len(response.Texts),
		"function_calls", response.FunctionCalls,
	)
	return response, nil
}
