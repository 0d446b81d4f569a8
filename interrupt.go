package quizai

// InterruptOption is a choice offered to the human reviewer.
type InterruptOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// DefaultInterruptOptions are the choices attached to a plan review.
func DefaultInterruptOptions() []InterruptOption {
	return []InterruptOption{
		{Text: "Edit plan", Value: "edit_plan"},
		{Text: "Start research", Value: "accepted"},
	}
}

// Interrupt is an outstanding request for human input. It is persisted in
// the checkpoint until the thread is resumed.
type Interrupt struct {
	ID      string            `json:"id"`
	Node    NodeID            `json:"node"`
	Value   string            `json:"value"`
	Options []InterruptOption `json:"options,omitempty"`
}

// Suspend returns a command that halts the thread and presents prompt to
// the caller. The node is executed again from the top on resume, so it must
// call Suspend only when ResumeValue reports no value:
//
//	feedback, ok := ResumeValue(ctx)
//	if !ok {
//	    return Suspend("Please review the plan."), nil
//	}
func Suspend(prompt string, options ...InterruptOption) *Command {
	if len(options) == 0 {
		options = DefaultInterruptOptions()
	}
	return &Command{Interrupt: &Interrupt{Value: prompt, Options: options}}
}
