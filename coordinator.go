package quizai

import (
	"context"

	"github.com/lpf0528/quiz-ai/prompt"
)

// coordinator talks to the user and decides whether the request is a
// research task. A handoff_to_planner call is the only signal; its arguments
// may refine the locale and the research topic.
func (r *runner) coordinator(ctx context.Context, st *State) (*Command, error) {
	logger := LoggerFromContext(ctx)

	sys, err := prompt.Render(prompt.Coordinator, r.promptData(st))
	if err != nil {
		return nil, err
	}

	req := &Request{
		Messages: append([]Message{SystemMessage(sys)}, st.Messages...),
		Tools:    []ToolSpec{handoffToPlannerSpec()},
	}
	resp, err := r.invoke(ctx, r.cfg.LLMTypeFor(NodeCoordinator), req, invokeBlocking)
	if err != nil {
		return nil, err
	}

	update := &Update{}
	if text := resp.Text(); text != "" {
		update.Messages = append(update.Messages, AssistantMessage(text, string(NodeCoordinator)))
	}

	if len(resp.FunctionCalls) == 0 {
		logger.Info("coordinator finished without handoff")
		return &Command{Update: update, Goto: NodeEnd}, nil
	}

	for _, call := range resp.FunctionCalls {
		if call.Name != handoffToPlannerName {
			continue
		}
		locale, _ := call.Arguments["locale"].(string)
		topic, _ := call.Arguments["research_topic"].(string)
		if locale == "" || topic == "" {
			logger.Warn("ignored malformed handoff arguments", "args", call.Arguments)
			continue
		}
		update.Locale = &locale
		update.ResearchTopic = &topic
		break
	}

	next := NodePlanner
	if st.EnableBackgroundInvestigation {
		next = NodeBackgroundInvestigator
	}
	logger.Info("coordinator handed off", "next", next)
	return &Command{Update: update, Goto: next}, nil
}
