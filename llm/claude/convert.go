package claude

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

// convertMessages splits system messages out and merges consecutive messages
// of the same role, which the messages API requires. Tool results are sent
// as user content.
func convertMessages(messages []quizai.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == quizai.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}

		role := anthropic.MessageParamRoleUser
		var blocks []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case quizai.RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
		case quizai.RoleTool:
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}

		if len(blocks) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	return system, out
}

func convertTool(spec quizai.ToolSpec) anthropic.ToolUnionParam {
	schema := spec.JSONSchema()
	tool := anthropic.ToolParam{
		Name: spec.Name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
			Required:   spec.Required,
		},
	}
	if spec.Description != "" {
		tool.Description = anthropic.String(spec.Description)
	}
	return anthropic.ToolUnionParam{OfTool: &tool}
}

// schemaInstruction asks for JSON output. The messages API has no native
// structured output; the caller repairs and validates the text.
func schemaInstruction(schema *quizai.Parameter) (string, error) {
	raw, err := json.MarshalIndent(schema.JSONSchema(), "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal response schema")
	}
	return "Respond with a single JSON object, without any other text, that conforms to this JSON schema:\n```json\n" + string(raw) + "\n```", nil
}

func convertResponse(resp *anthropic.Message) (*quizai.Response, error) {
	response := &quizai.Response{
		InputToken:  int(resp.Usage.InputTokens),
		OutputToken: int(resp.Usage.OutputTokens),
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				response.Texts = append(response.Texts, block.Text)
			}
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, goerr.Wrap(err, "failed to unmarshal tool input", goerr.V("name", block.Name))
				}
			}
			response.FunctionCalls = append(response.FunctionCalls, &quizai.FunctionCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return response, nil
}
