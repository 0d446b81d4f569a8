package openai

import (
	"encoding/json"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

func convertMessages(messages []quizai.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, convertMessage(msg))
	}
	return out
}

func convertMessage(msg quizai.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Content: msg.Content,
		Name:    msg.Name,
	}

	switch msg.Role {
	case quizai.RoleSystem:
		out.Role = openai.ChatMessageRoleSystem
	case quizai.RoleAssistant:
		out.Role = openai.ChatMessageRoleAssistant
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
	case quizai.RoleTool:
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = msg.ToolCallID
		out.Name = ""
	default:
		out.Role = openai.ChatMessageRoleUser
	}

	return out
}

func convertTool(spec quizai.ToolSpec) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.JSONSchema(),
		},
	}
}

func convertResponseFormat(schema *quizai.Parameter) (*openai.ChatCompletionResponseFormat, error) {
	raw, err := json.Marshal(schema.JSONSchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal response schema")
	}

	name := schema.Title
	if name == "" {
		name = "response"
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:        name,
			Description: schema.Description,
			Schema:      json.RawMessage(raw),
		},
	}, nil
}

func convertToolCall(call openai.ToolCall) (*quizai.FunctionCall, error) {
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal tool arguments",
				goerr.V("name", call.Function.Name), goerr.V("arguments", call.Function.Arguments))
		}
	}
	return &quizai.FunctionCall{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: args,
	}, nil
}

func convertResponseMessage(msg openai.ChatCompletionMessage) (*quizai.Response, error) {
	response := &quizai.Response{}
	if msg.Content != "" {
		response.Texts = append(response.Texts, msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		call, err := convertToolCall(tc)
		if err != nil {
			return nil, err
		}
		response.FunctionCalls = append(response.FunctionCalls, call)
	}
	return response, nil
}
