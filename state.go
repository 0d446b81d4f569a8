package quizai

// State is the context threaded through every node of a thread.
type State struct {
	Messages      []Message `json:"messages"`
	Locale        string    `json:"locale"`
	ResearchTopic string    `json:"research_topic"`
	Observations  []string  `json:"observations"`

	CurrentPlan    PlanValue `json:"current_plan"`
	PlanIterations int       `json:"plan_iterations"`
	FinalReport    string    `json:"final_report"`

	AutoAcceptedPlan               bool    `json:"auto_accepted_plan"`
	EnableBackgroundInvestigation  bool    `json:"enable_background_investigation"`
	BackgroundInvestigationResults *string `json:"background_investigation_results,omitempty"`
}

// DefaultLocale is used until the coordinator or a plan sets one.
const DefaultLocale = "en-US"

// NewState creates the initial state of a thread.
func NewState(messages []Message, cfg Config) *State {
	st := &State{
		Messages:                      append([]Message(nil), messages...),
		Locale:                        DefaultLocale,
		Observations:                  []string{},
		AutoAcceptedPlan:              cfg.AutoAcceptedPlan,
		EnableBackgroundInvestigation: cfg.EnableBackgroundInvestigation,
	}
	if len(messages) > 0 {
		st.ResearchTopic = messages[len(messages)-1].Content
	}
	return st
}

// Clone returns a deep copy so that nodes can never mutate the stored state.
func (s *State) Clone() *State {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Observations = append([]string(nil), s.Observations...)
	if p, ok := s.CurrentPlan.Plan(); ok {
		c.CurrentPlan = ValidatedPlan(p.Clone())
	}
	if s.BackgroundInvestigationResults != nil {
		v := *s.BackgroundInvestigationResults
		c.BackgroundInvestigationResults = &v
	}
	return &c
}

// Update is a partial state change returned by a node. Nil fields are left
// untouched; Messages and Observations are appended.
type Update struct {
	Messages     []Message
	Observations []string

	Locale                         *string
	ResearchTopic                  *string
	CurrentPlan                    *PlanValue
	PlanIterations                 *int
	FinalReport                    *string
	BackgroundInvestigationResults *string
}

// Apply merges the update into the state.
func (s *State) Apply(u *Update) {
	if u == nil {
		return
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.Observations = append(s.Observations, u.Observations...)

	if u.Locale != nil {
		s.Locale = *u.Locale
	}
	if u.ResearchTopic != nil {
		s.ResearchTopic = *u.ResearchTopic
	}
	if u.CurrentPlan != nil {
		s.CurrentPlan = *u.CurrentPlan
	}
	if u.PlanIterations != nil {
		s.PlanIterations = *u.PlanIterations
	}
	if u.FinalReport != nil {
		s.FinalReport = *u.FinalReport
	}
	if u.BackgroundInvestigationResults != nil {
		v := *u.BackgroundInvestigationResults
		s.BackgroundInvestigationResults = &v
	}
}

func ptr[T any](v T) *T {
	return &v
}
