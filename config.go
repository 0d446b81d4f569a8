package quizai

import "github.com/m-mizutani/goerr/v2"

// ReportStyle selects the tone of the final report.
type ReportStyle string

const (
	ReportStyleAcademic       ReportStyle = "academic"
	ReportStylePopularScience ReportStyle = "popular_science"
	ReportStyleNews           ReportStyle = "news"
	ReportStyleSocialMedia    ReportStyle = "social_media"
)

const (
	DefaultMaxPlanIterations = 1
	DefaultMaxStepNum        = 3
	DefaultMaxSearchResults  = 3
	DefaultRecursionLimit    = 25
)

// Config holds the per-thread settings. It is stored in the checkpoint so a
// resumed thread keeps the settings it was started with.
type Config struct {
	MaxPlanIterations int `json:"max_plan_iterations"`

	// MaxStepNum is advisory. It is handed to the planner prompt and never
	// enforced by routing.
	MaxStepNum       int `json:"max_step_num"`
	MaxSearchResults int `json:"max_search_results"`

	AutoAcceptedPlan              bool        `json:"auto_accepted_plan"`
	EnableBackgroundInvestigation bool        `json:"enable_background_investigation"`
	EnableDeepThinking            bool        `json:"enable_deep_thinking"`
	ReportStyle                   ReportStyle `json:"report_style"`

	// RecursionLimit bounds the number of nodes executed by one Run or
	// Resume call.
	RecursionLimit int `json:"recursion_limit"`

	// AgentLLM overrides the LLM type used by an agent node.
	AgentLLM map[NodeID]LLMType `json:"agent_llm,omitempty"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		MaxPlanIterations:             DefaultMaxPlanIterations,
		MaxStepNum:                    DefaultMaxStepNum,
		MaxSearchResults:              DefaultMaxSearchResults,
		EnableBackgroundInvestigation: true,
		ReportStyle:                   ReportStyleAcademic,
		RecursionLimit:                DefaultRecursionLimit,
	}
}

// Validate rejects settings the workflow cannot run with.
func (c Config) Validate() error {
	eb := goerr.NewBuilder(goerr.V("config", c))
	if c.MaxPlanIterations < 0 {
		return eb.New("max_plan_iterations must not be negative")
	}
	if c.MaxStepNum < 0 {
		return eb.New("max_step_num must not be negative")
	}
	if c.MaxSearchResults < 0 {
		return eb.New("max_search_results must not be negative")
	}
	if c.RecursionLimit <= 0 {
		return eb.New("recursion_limit must be positive")
	}
	switch c.ReportStyle {
	case ReportStyleAcademic, ReportStylePopularScience, ReportStyleNews, ReportStyleSocialMedia:
	default:
		return eb.New("unknown report style", goerr.V("report_style", c.ReportStyle))
	}
	return nil
}

// LLMTypeFor returns the LLM type used by the agent node.
func (c Config) LLMTypeFor(node NodeID) LLMType {
	if t, ok := c.AgentLLM[node]; ok && t != "" {
		return t
	}
	return LLMTypeBasic
}
