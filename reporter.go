package quizai

import (
	"context"
	"fmt"

	"github.com/lpf0528/quiz-ai/prompt"
)

const reportFormatInstruction = "IMPORTANT: Structure your report according to the format in the prompt. Remember to include:\n\n1. Key Points - A bulleted list of the most important findings\n2. Overview - A brief introduction to the topic\n3. Detailed Analysis - Organized into logical sections\n4. Survey Note (optional) - For more comprehensive reports\n5. Key Citations - List all references at the end\n\nFor citations, DO NOT include inline citations in the text. Instead, place all citations in the 'Key Citations' section at the end using the format: `- [Source Title](URL)`. Include an empty line between each citation for better readability.\n\nPRIORITIZE USING MARKDOWN TABLES for data presentation and comparison. Use tables whenever presenting comparative data, statistics, features, or options. Structure tables with clear headers and aligned columns. Example table format:\n\n| Feature | Description | Pros | Cons |\n|---------|-------------|------|------|\n| Feature 1 | Description 1 | Pros 1 | Cons 1 |\n| Feature 2 | Description 2 | Pros 2 | Cons 2 |"

// reporter writes the final report from the plan and the observations.
func (r *runner) reporter(ctx context.Context, st *State) (*Command, error) {
	title, thought := reportSubject(st)

	sys, err := prompt.Render(prompt.Reporter, r.promptData(st))
	if err != nil {
		return nil, err
	}

	messages := []Message{
		SystemMessage(sys),
		UserMessage(fmt.Sprintf("# Research Requirements\n\n## Task\n\n%s\n\n## Description\n\n%s", title, thought), ""),
		UserMessage(reportFormatInstruction, "system"),
	}
	for _, obs := range st.Observations {
		messages = append(messages, UserMessage(obs, "observation"))
	}

	resp, err := r.invoke(ctx, r.cfg.LLMTypeFor(NodeReporter), &Request{Messages: messages}, invokeBlocking)
	if err != nil {
		return nil, err
	}

	report := resp.Text()
	LoggerFromContext(ctx).Info("report generated", "length", len(report))
	return &Command{
		Update: &Update{
			Messages:    []Message{AssistantMessage(report, string(NodeReporter))},
			FinalReport: &report,
		},
		Goto: NodeEnd,
	}, nil
}

// reportSubject picks the task title and description. A raw plan that still
// parses is used as well; otherwise the research topic stands in.
func reportSubject(st *State) (string, string) {
	if plan, ok := st.CurrentPlan.Plan(); ok {
		return plan.Title, plan.Thought
	}
	if raw, ok := st.CurrentPlan.Raw(); ok {
		if plan, err := ParsePlan(raw); err == nil {
			return plan.Title, plan.Thought
		}
	}
	return st.ResearchTopic, st.ResearchTopic
}
