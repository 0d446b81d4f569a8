package quizai

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lpf0528/quiz-ai/prompt"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultLoopLimit bounds the tool-calling rounds of one worker step.
const DefaultLoopLimit = 16

const (
	emptyStepResult = "No result was produced for this step."

	researcherCitationNote = "IMPORTANT: DO NOT include inline citations in the text. Instead, track all sources and include a References section at the end using link reference format. Include an empty line between each citation for better readability. Use this format for each reference:\n- [Source Title](URL)\n\n- [Another Source](URL)"
)

// researcher executes the first pending step with search and crawl tools.
func (r *runner) researcher(ctx context.Context, st *State) (*Command, error) {
	return r.runWorker(ctx, st, NodeResearcher, prompt.Researcher, r.researcherTools)
}

// coder executes the first pending step with code execution tools.
func (r *runner) coder(ctx context.Context, st *State) (*Command, error) {
	return r.runWorker(ctx, st, NodeCoder, prompt.Coder, r.coderTools)
}

func (r *runner) runWorker(ctx context.Context, st *State, role NodeID, name prompt.Name, tools []Tool) (*Command, error) {
	logger := LoggerFromContext(ctx)

	current, ok := st.CurrentPlan.Plan()
	if !ok || current.FirstIncompleteStep() == nil {
		logger.Warn("worker called without a pending step", "role", role)
		return Goto(NodeResearchTeam), nil
	}
	plan := current.Clone()
	step := plan.FirstIncompleteStep()

	toolMap, err := buildToolMap(ctx, tools, r.toolSets[role])
	if err != nil {
		return nil, err
	}
	specs, extra := toolSpecs(toolMap, tools)

	data := r.promptData(st)
	data.ExtraTools = extra
	sys, err := prompt.Render(name, data)
	if err != nil {
		return nil, err
	}

	messages := []Message{
		SystemMessage(sys),
		UserMessage(fmt.Sprintf("# Current Task\n\n## Title\n\n%s\n\n## Description\n\n%s\n\n## Locale\n\n%s",
			step.Title, step.Description, st.Locale), ""),
	}
	if role == NodeResearcher {
		messages = append(messages, UserMessage(researcherCitationNote, "system"))
	}

	result, err := r.toolLoop(ctx, role, messages, specs, toolMap)
	if err != nil {
		return nil, err
	}
	if result == "" {
		result = emptyStepResult
	}

	step.ExecutionRes = result
	logger.Info("step executed", "role", role, "step", step.Title)

	return &Command{
		Update: &Update{
			Messages:     []Message{AssistantMessage(result, string(role))},
			Observations: []string{result},
			CurrentPlan:  ptr(ValidatedPlan(plan)),
		},
		Goto: NodeResearchTeam,
	}, nil
}

// toolLoop asks the model until it answers without tool calls and returns
// that answer.
func (r *runner) toolLoop(ctx context.Context, role NodeID, messages []Message, specs []ToolSpec, toolMap map[string]Tool) (string, error) {
	llmType := r.cfg.LLMTypeFor(role)

	for i := 0; i < r.loopLimit; i++ {
		resp, err := r.invoke(ctx, llmType, &Request{Messages: messages, Tools: specs}, invokeBlocking)
		if err != nil {
			return "", err
		}
		if len(resp.FunctionCalls) == 0 {
			return resp.Text(), nil
		}

		for _, call := range resp.FunctionCalls {
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
		}
		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Text(),
			Name:      string(role),
			ToolCalls: resp.FunctionCalls,
		})
		if err := Emit(ctx, &Event{Type: EventToolCalls, ID: uuid.NewString(), Role: RoleAssistant, ToolCalls: resp.FunctionCalls}); err != nil {
			return "", err
		}

		for _, call := range resp.FunctionCalls {
			content := r.runTool(ctx, toolMap, call)
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    content,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
			if err := Emit(ctx, &Event{
				Type:       EventToolCallResult,
				ID:         uuid.NewString(),
				Role:       RoleTool,
				Content:    content,
				Name:       call.Name,
				ToolCallID: call.ID,
			}); err != nil {
				return "", err
			}
		}
	}

	return "", goerr.Wrap(ErrLoopLimitExceeded, "worker stopped", goerr.V("role", role), goerr.V("loop_limit", r.loopLimit))
}

// toolSpecs lists every tool sorted by name. Tools that do not come from the
// static set (MCP tool sets) are returned as prompt extras.
func toolSpecs(toolMap map[string]Tool, static []Tool) ([]ToolSpec, []prompt.ToolInfo) {
	builtin := make(map[string]bool, len(static))
	for _, t := range static {
		builtin[t.Spec().Name] = true
	}

	names := make([]string, 0, len(toolMap))
	for name := range toolMap {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ToolSpec, 0, len(names))
	var extra []prompt.ToolInfo
	for _, name := range names {
		spec := toolMap[name].Spec()
		specs = append(specs, spec)
		if !builtin[name] {
			extra = append(extra, prompt.ToolInfo{Name: spec.Name, Description: spec.Description})
		}
	}
	return specs, extra
}
