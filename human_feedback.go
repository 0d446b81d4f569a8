package quizai

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// FeedbackEditPlan prefixes a resume value that sends the plan back to
	// the planner together with the reviewer's comments.
	FeedbackEditPlan = "[EDIT_PLAN]"
	// FeedbackAccepted prefixes a resume value that approves the plan.
	FeedbackAccepted = "[ACCEPTED]"

	reviewPrompt = "Please review the plan."
)

// humanFeedback lets a reviewer approve or edit the plan, then turns the raw
// plan into a validated one.
func (r *runner) humanFeedback(ctx context.Context, st *State) (*Command, error) {
	logger := LoggerFromContext(ctx)

	if st.AutoAcceptedPlan {
		feedback, ok := ResumeValue(ctx)
		if !ok {
			return Suspend(reviewPrompt), nil
		}

		upper := strings.ToUpper(feedback)
		switch {
		case strings.HasPrefix(upper, FeedbackEditPlan):
			logger.Info("plan edit requested")
			return &Command{
				Update: &Update{Messages: []Message{UserMessage(feedback, "feedback")}},
				Goto:   NodePlanner,
			}, nil

		case strings.HasPrefix(upper, FeedbackAccepted):
			logger.Info("plan accepted")

		default:
			return nil, goerr.Wrap(ErrProtocol, "unknown feedback type", goerr.V("resume_value", feedback))
		}
	}

	iterations := st.PlanIterations + 1
	plan, err := ParsePlan(st.CurrentPlan.Text())
	if err != nil {
		next := NodeEnd
		if iterations > 1 {
			next = NodeReporter
		}
		logger.Warn("failed to parse reviewed plan", "error", err, "next", next)
		return Goto(next), nil
	}

	update := &Update{
		CurrentPlan:    ptr(ValidatedPlan(plan)),
		PlanIterations: &iterations,
	}
	if plan.Locale != "" {
		update.Locale = &plan.Locale
	}
	return &Command{Update: update, Goto: NodeResearchTeam}, nil
}
