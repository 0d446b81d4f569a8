package quizai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/lpf0528/quiz-ai/trace"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// invokeMode selects how a node talks to its LLM.
type invokeMode int

const (
	invokeBlocking invokeMode = iota
	invokeStreaming
)

// invoke sends the request to the client registered for llmType. Streaming
// output is forwarded as message_chunk events sharing one message id.
func (r *runner) invoke(ctx context.Context, llmType LLMType, req *Request, mode invokeMode) (*Response, error) {
	client, err := r.llms.Get(llmType)
	if err != nil {
		return nil, err
	}

	ctxlog.From(ctx, promptScope).Debug("llm request",
		"llm_type", llmType,
		"messages", req.Messages,
		"tools", len(req.Tools),
		"structured", req.ResponseSchema != nil,
	)

	ctx = r.trace.StartLLMCall(ctx)

	var resp *Response
	switch mode {
	case invokeStreaming:
		msgID := uuid.NewString()
		resp, err = client.Stream(ctx, req, func(chunk string) error {
			if chunk == "" {
				return nil
			}
			return Emit(ctx, &Event{
				Type:    EventMessageChunk,
				ID:      msgID,
				Role:    RoleAssistant,
				Content: chunk,
			})
		})
	default:
		resp, err = client.Generate(ctx, req)
	}

	r.trace.EndLLMCall(ctx, toTraceLLMCall(llmType, mode, req, resp), err)

	if err != nil {
		return nil, collaboratorError(err, "llm generation failed", goerr.V("llm_type", llmType))
	}
	if resp == nil {
		resp = &Response{}
	}

	ctxlog.From(ctx, responseScope).Debug("llm response",
		"llm_type", llmType,
		"texts", resp.Texts,
		"function_calls", resp.FunctionCalls,
		"input_token", resp.InputToken,
		"output_token", resp.OutputToken,
	)
	return resp, nil
}

func toTraceLLMCall(llmType LLMType, mode invokeMode, req *Request, resp *Response) *trace.LLMCallData {
	data := &trace.LLMCallData{
		LLMType:  string(llmType),
		Streamed: mode == invokeStreaming,
		Request:  &trace.LLMRequest{},
	}

	for _, msg := range req.Messages {
		data.Request.Messages = append(data.Request.Messages, trace.Message{
			Role:    string(msg.Role),
			Name:    msg.Name,
			Content: msg.Content,
		})
	}
	for _, spec := range req.Tools {
		data.Request.Tools = append(data.Request.Tools, trace.ToolSpec{
			Name:        spec.Name,
			Description: spec.Description,
		})
	}
	if req.ResponseSchema != nil {
		data.Request.ResponseSchema = req.ResponseSchema.Title
	}

	if resp != nil {
		data.InputTokens = resp.InputToken
		data.OutputTokens = resp.OutputToken
		data.Response = &trace.LLMResponse{Texts: resp.Texts}
		for _, fc := range resp.FunctionCalls {
			data.Response.FunctionCalls = append(data.Response.FunctionCalls, &trace.FunctionCall{
				ID:        fc.ID,
				Name:      fc.Name,
				Arguments: fc.Arguments,
			})
		}
	}
	return data
}

// runTool executes one tool call and renders its outcome as the text handed
// back to the model. Tool failures become text; they never abort the loop.
func (r *runner) runTool(ctx context.Context, toolMap map[string]Tool, call *FunctionCall) string {
	logger := LoggerFromContext(ctx)

	tool, ok := toolMap[call.Name]
	if !ok {
		logger.Info("tool not found", "call", call)
		return "Error: tool " + call.Name + " is not available"
	}

	ctx = r.trace.StartToolExec(ctx, call.Name, call.Arguments)
	result, err := tool.Run(ctx, call.Arguments)
	r.trace.EndToolExec(ctx, result, err)

	if err != nil {
		logger.Info("tool error", "call", call, "error", err)
		return "Error: " + err.Error()
	}

	logger.Debug("tool response", "call", call, "result", result)
	if text, ok := result["content"].(string); ok && len(result) == 1 {
		return text
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "Error: failed to encode tool result: " + err.Error()
	}
	return strings.TrimSpace(string(raw))
}
