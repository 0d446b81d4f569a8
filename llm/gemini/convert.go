package gemini

import (
	"strings"

	"github.com/google/uuid"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// convertMessages builds the system instruction and the contents. Gemini
// uses "model" for the assistant and expects function responses from the
// user side; consecutive contents of the same role are merged.
func convertMessages(messages []quizai.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, msg := range messages {
		if msg.Role == quizai.RoleSystem {
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
			continue
		}

		role := roleUser
		var parts []*genai.Part

		switch msg.Role {
		case quizai.RoleAssistant:
			role = roleModel
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Arguments,
					},
				})
			}
		case quizai.RoleTool:
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: map[string]any{"content": msg.Content},
				},
			})
		default:
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(parts) == 0 {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	return system, contents
}

func convertTool(spec quizai.ToolSpec) *genai.FunctionDeclaration {
	// Gemini rejects a nil required list.
	required := spec.Required
	if required == nil {
		required = []string{}
	}

	parameters := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema),
		Required:   required,
	}
	for name, param := range spec.Parameters {
		parameters.Properties[name] = convertParameterToSchema(param)
	}

	return &genai.FunctionDeclaration{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parameters,
	}
}

func convertParameterToSchema(param *quizai.Parameter) *genai.Schema {
	schema := &genai.Schema{
		Type:        getGeminiType(param.Type),
		Description: param.Description,
		Title:       param.Title,
	}

	if len(param.Enum) > 0 {
		schema.Enum = param.Enum
	}

	if param.Properties != nil {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range param.Properties {
			schema.Properties[name] = convertParameterToSchema(prop)
		}
		schema.Required = param.Required
		if schema.Required == nil {
			schema.Required = []string{}
		}
	}

	if param.Items != nil {
		schema.Items = convertParameterToSchema(param.Items)
	}

	if param.Minimum != nil {
		v := *param.Minimum
		schema.Minimum = &v
	}
	if param.Maximum != nil {
		v := *param.Maximum
		schema.Maximum = &v
	}
	if param.MinItems != nil {
		v := int64(*param.MinItems)
		schema.MinItems = &v
	}
	if param.MaxItems != nil {
		v := int64(*param.MaxItems)
		schema.MaxItems = &v
	}

	return schema
}

func getGeminiType(paramType quizai.ParameterType) genai.Type {
	switch paramType {
	case quizai.TypeString:
		return genai.TypeString
	case quizai.TypeNumber:
		return genai.TypeNumber
	case quizai.TypeInteger:
		return genai.TypeInteger
	case quizai.TypeBoolean:
		return genai.TypeBoolean
	case quizai.TypeArray:
		return genai.TypeArray
	case quizai.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// processResponse appends texts, function calls and usage of resp to out.
// Streaming calls it once per chunk.
func processResponse(resp *genai.GenerateContentResponse, out *quizai.Response) error {
	if resp == nil {
		return nil
	}

	if resp.UsageMetadata != nil {
		out.InputToken = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputToken = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	for _, candidate := range resp.Candidates {
		reason := string(candidate.FinishReason)
		if strings.Contains(reason, "MALFORMED_FUNCTION_CALL") {
			return goerr.Wrap(ErrMalformedFunctionCall, "gemini returned malformed function call", goerr.V("finish_reason", reason))
		}
		if strings.Contains(reason, "PROHIBITED_CONTENT") {
			return goerr.Wrap(ErrProhibitedContent, "gemini blocked the content", goerr.V("finish_reason", reason))
		}

		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				out.Texts = append(out.Texts, part.Text)
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					id = uuid.NewString()
				}
				out.FunctionCalls = append(out.FunctionCalls, &quizai.FunctionCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}

	return nil
}
