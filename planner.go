package quizai

import (
	"context"

	"github.com/lpf0528/quiz-ai/prompt"
)

const backgroundResultsPrefix = "background investigation results of user query:\n"

// planner produces a research plan. A plan with enough context goes to the
// reporter directly; any other plan waits for review as raw text.
func (r *runner) planner(ctx context.Context, st *State) (*Command, error) {
	logger := LoggerFromContext(ctx)

	if st.PlanIterations >= r.cfg.MaxPlanIterations {
		logger.Info("plan iterations exhausted", "iterations", st.PlanIterations, "max", r.cfg.MaxPlanIterations)
		return Goto(NodeReporter), nil
	}

	sys, err := prompt.Render(prompt.Planner, r.promptData(st))
	if err != nil {
		return nil, err
	}
	messages := append([]Message{SystemMessage(sys)}, st.Messages...)
	if st.EnableBackgroundInvestigation && st.BackgroundInvestigationResults != nil && *st.BackgroundInvestigationResults != "" {
		messages = append(messages, UserMessage(backgroundResultsPrefix+*st.BackgroundInvestigationResults+"\n", ""))
	}

	req := &Request{Messages: messages}
	llmType := r.cfg.LLMTypeFor(NodePlanner)
	mode := invokeStreaming
	switch {
	case r.cfg.EnableDeepThinking:
		llmType = LLMTypeReasoning
	case llmType == LLMTypeBasic:
		req.ResponseSchema = PlanSchema()
		mode = invokeBlocking
	}

	resp, err := r.invoke(ctx, llmType, req, mode)
	if err != nil {
		return nil, err
	}
	text := resp.Text()

	plan, err := ParsePlan(text)
	if err != nil {
		next := NodeEnd
		if st.PlanIterations > 0 {
			next = NodeReporter
		}
		logger.Warn("failed to parse plan", "error", err, "next", next)
		return Goto(next), nil
	}

	update := &Update{Messages: []Message{AssistantMessage(text, string(NodePlanner))}}
	if plan.HasEnoughContext {
		update.CurrentPlan = ptr(ValidatedPlan(plan))
		logger.Info("plan has enough context")
		return &Command{Update: update, Goto: NodeReporter}, nil
	}

	update.CurrentPlan = ptr(RawPlan(text))
	return &Command{Update: update, Goto: NodeHumanFeedback}, nil
}
