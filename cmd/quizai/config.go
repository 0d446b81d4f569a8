package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/llm/claude"
	"github.com/lpf0528/quiz-ai/llm/gemini"
	"github.com/lpf0528/quiz-ai/llm/openai"
	"github.com/lpf0528/quiz-ai/middleware/retry"
	"github.com/lpf0528/quiz-ai/search"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const (
	providerOpenAI = "openai"
	providerClaude = "claude"
	providerGemini = "gemini"

	defaultMaxRetries = 3
)

// modelConfig is one *_MODEL block of conf.yaml.
type modelConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	MaxRetries  *int     `yaml:"max_retries"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`

	// Project and Location select Vertex AI for the gemini provider.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

type fileConfig struct {
	BasicModel     *modelConfig  `yaml:"BASIC_MODEL"`
	ReasoningModel *modelConfig  `yaml:"REASONING_MODEL"`
	CodeModel      *modelConfig  `yaml:"CODE_MODEL"`
	VisionModel    *modelConfig  `yaml:"VISION_MODEL"`
	SearchEngine   search.Config `yaml:"SEARCH_ENGINE"`
}

func (c *fileConfig) model(t quizai.LLMType) **modelConfig {
	switch t {
	case quizai.LLMTypeReasoning:
		return &c.ReasoningModel
	case quizai.LLMTypeCode:
		return &c.CodeModel
	case quizai.LLMTypeVision:
		return &c.VisionModel
	default:
		return &c.BasicModel
	}
}

// loadConfig reads conf.yaml. A missing file gives an empty config so that
// models can be set only through the environment. environ is os.Environ().
func loadConfig(path string, environ []string) (*fileConfig, error) {
	cfg := &fileConfig{}
	env := envMap(environ)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var root yaml.Node
		if err := yaml.Unmarshal(raw, &root); err != nil {
			return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
		}
		replaceEnvVars(&root, env)
		if err := root.Decode(cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode config file", goerr.V("path", path))
		}
	case os.IsNotExist(err):
	default:
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	for _, t := range quizai.LLMTypes() {
		if err := applyEnvOverrides(cfg.model(t), t, env); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// replaceEnvVars substitutes string scalars of the form $NAME. An unset
// variable leaves the bare name.
func replaceEnvVars(node *yaml.Node, env map[string]string) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" && strings.HasPrefix(node.Value, "$") {
		name := node.Value[1:]
		if v, ok := env[name]; ok {
			node.Value = v
		} else {
			node.Value = name
		}
	}
	for _, child := range node.Content {
		replaceEnvVars(child, env)
	}
}

// applyEnvOverrides applies {TYPE}_MODEL__{key} variables, which win over
// the file.
func applyEnvOverrides(target **modelConfig, t quizai.LLMType, env map[string]string) error {
	prefix := strings.ToUpper(string(t)) + "_MODEL__"
	for key, value := range env {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if *target == nil {
			*target = &modelConfig{}
		}
		mc := *target
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		eb := goerr.NewBuilder(goerr.V("env", key), goerr.V("value", value))

		switch name {
		case "provider":
			mc.Provider = value
		case "model":
			mc.Model = value
		case "base_url":
			mc.BaseURL = value
		case "api_key":
			mc.APIKey = value
		case "project":
			mc.Project = value
		case "location":
			mc.Location = value
		case "max_retries":
			n, err := strconv.Atoi(value)
			if err != nil {
				return eb.Wrap(err, "invalid max_retries")
			}
			mc.MaxRetries = &n
		case "max_tokens":
			n, err := strconv.Atoi(value)
			if err != nil {
				return eb.Wrap(err, "invalid max_tokens")
			}
			mc.MaxTokens = n
		case "temperature":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return eb.Wrap(err, "invalid temperature")
			}
			mc.Temperature = &f
		}
	}
	return nil
}

// newLLMClient creates the client of one model block. The provider defaults
// to openai, which also serves OpenAI compatible gateways through base_url.
func newLLMClient(ctx context.Context, mc *modelConfig) (quizai.LLMClient, error) {
	var client quizai.LLMClient
	provider := mc.Provider
	if provider == "" {
		provider = providerOpenAI
	}

	switch provider {
	case providerOpenAI:
		var opts []openai.Option
		if mc.Model != "" {
			opts = append(opts, openai.WithModel(mc.Model))
		}
		if mc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(mc.BaseURL))
		}
		if mc.Temperature != nil {
			opts = append(opts, openai.WithTemperature(float32(*mc.Temperature)))
		}
		if mc.MaxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(mc.MaxTokens))
		}
		c, err := openai.New(ctx, mc.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		client = c

	case providerClaude:
		var opts []claude.Option
		if mc.Model != "" {
			opts = append(opts, claude.WithModel(mc.Model))
		}
		if mc.BaseURL != "" {
			opts = append(opts, claude.WithBaseURL(mc.BaseURL))
		}
		if mc.Temperature != nil {
			opts = append(opts, claude.WithTemperature(*mc.Temperature))
		}
		if mc.MaxTokens > 0 {
			opts = append(opts, claude.WithMaxTokens(int64(mc.MaxTokens)))
		}
		c, err := claude.New(ctx, mc.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		client = c

	case providerGemini:
		var opts []gemini.Option
		if mc.Model != "" {
			opts = append(opts, gemini.WithModel(mc.Model))
		}
		if mc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(mc.BaseURL))
		}
		if mc.Project != "" {
			opts = append(opts, gemini.WithVertexAI(mc.Project, mc.Location))
		}
		if mc.Temperature != nil {
			opts = append(opts, gemini.WithTemperature(float32(*mc.Temperature)))
		}
		if mc.MaxTokens > 0 {
			opts = append(opts, gemini.WithMaxTokens(int32(mc.MaxTokens)))
		}
		c, err := gemini.New(ctx, mc.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		client = c

	default:
		return nil, goerr.New("unsupported LLM provider", goerr.V("provider", provider))
	}

	retries := defaultMaxRetries
	if mc.MaxRetries != nil {
		retries = *mc.MaxRetries
	}
	return quizai.WithMiddleware(client, retry.New(retries)), nil
}

// newRegistry creates a client for every configured model block. The basic
// model is required.
func newRegistry(ctx context.Context, cfg *fileConfig) (*quizai.LLMRegistry, error) {
	if cfg.BasicModel == nil {
		return nil, goerr.New("BASIC_MODEL is not configured")
	}

	registry := quizai.NewLLMRegistry()
	for _, t := range quizai.LLMTypes() {
		mc := *cfg.model(t)
		if mc == nil {
			continue
		}
		client, err := newLLMClient(ctx, mc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create LLM client", goerr.V("llm_type", t))
		}
		registry.Register(t, client)
	}
	return registry, nil
}
