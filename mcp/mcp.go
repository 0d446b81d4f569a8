// Package mcp connects to MCP servers with mark3labs/mcp-go and exposes
// their tools as quizai.ToolSet.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	DefaultClientName    = "quiz-ai"
	DefaultClientVersion = "0.1.0"
)

var (
	ErrInvalidInputSchema = goerr.New("invalid input schema")
	ErrToolNotEnabled     = goerr.New("tool is not enabled")
)

// session is the part of the mcp-go client used after initialization.
type session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Client is a connected MCP server. It implements quizai.ToolSet.
type Client struct {
	name    string
	version string

	// enabled limits the offered tools. Empty offers every tool.
	enabled map[string]bool

	session session
	mu      sync.Mutex
}

var _ quizai.ToolSet = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithClientInfo sets the client name and version sent on initialize.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}

// WithEnabledTools offers only the named tools.
func WithEnabledTools(names ...string) Option {
	return func(c *Client) {
		if c.enabled == nil {
			c.enabled = map[string]bool{}
		}
		for _, n := range names {
			c.enabled[n] = true
		}
	}
}

func newClient(options ...Option) *Client {
	c := &Client{name: DefaultClientName, version: DefaultClientVersion}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewStdio starts a local MCP server executable and connects to it through
// stdio. env entries have the form KEY=VALUE.
func NewStdio(ctx context.Context, command string, args, env []string, options ...Option) (*Client, error) {
	c := newClient(options...)
	tp := transport.NewStdio(command, env, args...)
	if err := c.connect(ctx, tp); err != nil {
		return nil, goerr.Wrap(err, "failed to connect stdio MCP server", goerr.V("command", command))
	}
	return c, nil
}

// NewSSE connects to a remote MCP server through HTTP SSE.
func NewSSE(ctx context.Context, baseURL string, headers map[string]string, options ...Option) (*Client, error) {
	c := newClient(options...)
	tp, err := transport.NewSSE(baseURL, transport.WithHeaders(headers))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create SSE transport", goerr.V("url", baseURL))
	}
	if err := c.connect(ctx, tp); err != nil {
		return nil, goerr.Wrap(err, "failed to connect SSE MCP server", goerr.V("url", baseURL))
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context, tp transport.Interface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mc := client.NewClient(tp)
	if err := mc.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var req mcp.InitializeRequest
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    c.name,
		Version: c.version,
	}
	if _, err := mc.Initialize(ctx, req); err != nil {
		mc.Close()
		return goerr.Wrap(err, "failed to initialize MCP client")
	}

	c.session = mc
	quizai.LoggerFromContext(ctx).Debug("MCP client initialized", "name", c.name, "version", c.version)
	return nil
}

// Specs lists the tools of the server, filtered by the enabled tools.
func (c *Client) Specs(ctx context.Context) ([]quizai.ToolSpec, error) {
	resp, err := c.session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list MCP tools")
	}

	var specs []quizai.ToolSpec
	var names []string
	for _, tool := range resp.Tools {
		if len(c.enabled) > 0 && !c.enabled[tool.Name] {
			continue
		}
		spec, err := convertToolToSpec(tool)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert tool to spec", goerr.V("tool.name", tool.Name))
		}
		specs = append(specs, spec)
		names = append(names, tool.Name)
	}

	quizai.LoggerFromContext(ctx).Debug("found MCP tools", "names", names)
	return specs, nil
}

// Run calls the tool on the server.
func (c *Client) Run(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if len(c.enabled) > 0 && !c.enabled[name] {
		return nil, goerr.Wrap(ErrToolNotEnabled, "refused MCP tool call", goerr.V("tool.name", name))
	}
	quizai.LoggerFromContext(ctx).Debug("call MCP tool", "name", name, "args", args)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.session.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool", goerr.V("tool.name", name))
	}
	if resp.IsError {
		return nil, goerr.New("MCP tool returned an error",
			goerr.V("tool.name", name),
			goerr.V("content", convertContentToMap(resp.Content)),
		)
	}
	return convertContentToMap(resp.Content), nil
}

// Close stops the connection and the server process if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	if err := c.session.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	c.session = nil
	return nil
}

func convertToolToSpec(tool mcp.Tool) (quizai.ToolSpec, error) {
	spec := quizai.ToolSpec{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  map[string]*quizai.Parameter{},
		Required:    tool.InputSchema.Required,
	}

	for name, property := range tool.InputSchema.Properties {
		prop, ok := property.(map[string]any)
		if !ok {
			return spec, goerr.Wrap(ErrInvalidInputSchema, "invalid property", goerr.V("property", name))
		}
		param, err := convertSchemaProperty(prop)
		if err != nil {
			return spec, goerr.Wrap(err, "failed to convert property", goerr.V("property", name))
		}
		spec.Parameters[name] = param
	}

	return spec, nil
}

func valueOrEmpty[T any](v any) T {
	var empty T
	if v, ok := v.(T); ok {
		return v
	}
	return empty
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return valueOrEmpty[[]string](v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func convertSchemaProperty(prop map[string]any) (*quizai.Parameter, error) {
	param := &quizai.Parameter{
		Type:        quizai.ParameterType(valueOrEmpty[string](prop["type"])),
		Title:       valueOrEmpty[string](prop["title"]),
		Description: valueOrEmpty[string](prop["description"]),
		Enum:        stringList(prop["enum"]),
	}
	if param.Type == "" {
		param.Type = quizai.TypeString
	}

	switch param.Type {
	case quizai.TypeObject:
		param.Properties = map[string]*quizai.Parameter{}
		param.Required = stringList(prop["required"])
		for name, v := range valueOrEmpty[map[string]any](prop["properties"]) {
			nested, ok := v.(map[string]any)
			if !ok {
				return nil, goerr.Wrap(ErrInvalidInputSchema, "invalid nested property", goerr.V("property", name))
			}
			p, err := convertSchemaProperty(nested)
			if err != nil {
				return nil, err
			}
			param.Properties[name] = p
		}

	case quizai.TypeArray:
		items, ok := prop["items"].(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidInputSchema, "array without items")
		}
		p, err := convertSchemaProperty(items)
		if err != nil {
			return nil, err
		}
		param.Items = p
	}

	if v, ok := prop["minimum"].(float64); ok {
		param.Minimum = &v
	}
	if v, ok := prop["maximum"].(float64); ok {
		param.Maximum = &v
	}

	return param, nil
}

// convertContentToMap turns the text contents of a result into a map. A
// single JSON object text is returned as is.
func convertContentToMap(contents []mcp.Content) map[string]any {
	var texts []string
	for _, c := range contents {
		switch v := c.(type) {
		case mcp.TextContent:
			texts = append(texts, v.Text)
		case *mcp.TextContent:
			texts = append(texts, v.Text)
		}
	}

	switch len(texts) {
	case 0:
		return map[string]any{}
	case 1:
		var v map[string]any
		if err := json.Unmarshal([]byte(texts[0]), &v); err == nil {
			return v
		}
		return map[string]any{"content": texts[0]}
	}

	result := map[string]any{}
	for i, text := range texts {
		result[fmt.Sprintf("content_%d", i+1)] = text
	}
	return result
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
