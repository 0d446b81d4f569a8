package mcp

import (
	"context"
	"errors"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Settings is the per-run MCP configuration, as sent in mcp_settings.
type Settings struct {
	Servers map[string]ServerConfig `json:"servers" yaml:"servers"`
}

// ServerConfig describes one MCP server and which agents get its tools.
type ServerConfig struct {
	Transport string            `json:"transport" yaml:"transport"`
	Command   string            `json:"command,omitempty" yaml:"command"`
	Args      []string          `json:"args,omitempty" yaml:"args"`
	Env       map[string]string `json:"env,omitempty" yaml:"env"`
	URL       string            `json:"url,omitempty" yaml:"url"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers"`

	EnabledTools []string        `json:"enabled_tools,omitempty" yaml:"enabled_tools"`
	AddToAgents  []quizai.NodeID `json:"add_to_agents,omitempty" yaml:"add_to_agents"`
}

// Validate checks the transport specific fields.
func (s ServerConfig) Validate() error {
	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return goerr.New("command is required for stdio transport")
		}
	case TransportSSE:
		if s.URL == "" {
			return goerr.New("url is required for sse transport")
		}
	default:
		return goerr.New("unsupported transport", goerr.V("transport", s.Transport))
	}
	for _, agent := range s.AddToAgents {
		if agent != quizai.NodeResearcher && agent != quizai.NodeCoder {
			return goerr.New("MCP tools can only be added to researcher or coder", goerr.V("agent", agent))
		}
	}
	return nil
}

// Connector opens a connection for one server. Connect is the default.
type Connector func(ctx context.Context, name string, cfg ServerConfig) (*Client, error)

// Connect opens the connection described by cfg.
func Connect(ctx context.Context, name string, cfg ServerConfig) (*Client, error) {
	opts := []Option{WithEnabledTools(cfg.EnabledTools...)}

	switch cfg.Transport {
	case TransportStdio:
		env := make([]string, 0, len(cfg.Env))
		for _, k := range sortedKeys(cfg.Env) {
			env = append(env, k+"="+cfg.Env[k])
		}
		return NewStdio(ctx, cfg.Command, cfg.Args, env, opts...)
	case TransportSSE:
		return NewSSE(ctx, cfg.URL, cfg.Headers, opts...)
	default:
		return nil, goerr.New("unsupported transport", goerr.V("server", name), goerr.V("transport", cfg.Transport))
	}
}

// ToolSets is the set of connected servers of one run.
type ToolSets struct {
	ByAgent map[quizai.NodeID][]quizai.ToolSet
	clients []*Client
}

// RunOptions returns quizai.WithToolSets options for every agent.
func (t *ToolSets) RunOptions() []quizai.RunOption {
	var opts []quizai.RunOption
	for _, agent := range []quizai.NodeID{quizai.NodeResearcher, quizai.NodeCoder} {
		if sets := t.ByAgent[agent]; len(sets) > 0 {
			opts = append(opts, quizai.WithToolSets(agent, sets...))
		}
	}
	return opts
}

// Close closes every connection.
func (t *ToolSets) Close() error {
	var errs []error
	for _, c := range t.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects every server that is added to at least one agent. Servers
// are visited in name order. On failure the opened connections are closed.
func Open(ctx context.Context, settings Settings, connect Connector) (*ToolSets, error) {
	if connect == nil {
		connect = Connect
	}
	sets := &ToolSets{ByAgent: map[quizai.NodeID][]quizai.ToolSet{}}

	for _, name := range sortedKeys(settings.Servers) {
		cfg := settings.Servers[name]
		if len(cfg.AddToAgents) == 0 {
			continue
		}
		if err := cfg.Validate(); err != nil {
			sets.Close()
			return nil, goerr.Wrap(err, "invalid MCP server config", goerr.V("server", name))
		}

		client, err := connect(ctx, name, cfg)
		if err != nil {
			sets.Close()
			return nil, goerr.Wrap(err, "failed to connect MCP server", goerr.V("server", name))
		}
		sets.clients = append(sets.clients, client)
		for _, agent := range cfg.AddToAgents {
			sets.ByAgent[agent] = append(sets.ByAgent[agent], client)
		}
	}

	return sets, nil
}
