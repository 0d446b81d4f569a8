package gemini_test

import (
	"context"
	"errors"
	"os"
	"testing"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/llm/gemini"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type apiMock struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	stream   []gemini.StreamResponse
}

var _ gemini.APIClient = (*apiMock)(nil)

func (m *apiMock) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.contents = contents
	m.config = config
	return m.resp, nil
}

func (m *apiMock) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) <-chan gemini.StreamResponse {
	m.contents = contents
	m.config = config
	ch := make(chan gemini.StreamResponse, len(m.stream))
	for _, r := range m.stream {
		ch <- r
	}
	close(ch)
	return ch
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	var parts []*genai.Part
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGenerate(t *testing.T) {
	api := &apiMock{
		resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Role: "model",
					Parts: []*genai.Part{
						{Text: "thinking", Thought: true},
						{Text: "searching"},
						{FunctionCall: &genai.FunctionCall{Name: "web_search", Args: map[string]any{"query": "go"}}},
					},
				},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
		},
	}
	client := gemini.NewWithAPIClient(api, "test-model", gemini.WithTemperature(0.2))

	resp, err := client.Generate(context.Background(), &quizai.Request{
		Messages: []quizai.Message{
			quizai.SystemMessage("be precise"),
			quizai.UserMessage("find go", ""),
		},
		Tools: []quizai.ToolSpec{{
			Name:       "web_search",
			Parameters: map[string]*quizai.Parameter{"query": {Type: quizai.TypeString}},
		}},
	})
	gt.NoError(t, err).Required()

	gt.Equal(t, resp.Texts, []string{"searching"})
	gt.A(t, resp.FunctionCalls).Length(1)
	gt.Equal(t, resp.FunctionCalls[0].Name, "web_search")
	gt.True(t, resp.FunctionCalls[0].ID != "")
	gt.Equal(t, resp.InputToken, 7)
	gt.Equal(t, resp.OutputToken, 3)

	gt.Equal(t, api.config.SystemInstruction.Parts[0].Text, "be precise")
	gt.Equal(t, *api.config.Temperature, float32(0.2))
	gt.A(t, api.config.Tools).Length(1)
	decl := api.config.Tools[0].FunctionDeclarations[0]
	gt.Equal(t, decl.Name, "web_search")
	gt.Equal(t, decl.Parameters.Required, []string{})
	gt.A(t, api.contents).Length(1)
	gt.Equal(t, api.contents[0].Role, "user")

	// the client level config is not modified by a request
	gt.Value(t, client.GenerationConfig().SystemInstruction).Nil()
}

func TestGenerateStructuredOutput(t *testing.T) {
	api := &apiMock{resp: textResponse(`{"title":"x"}`)}
	client := gemini.NewWithAPIClient(api, "m")

	_, err := client.Generate(context.Background(), &quizai.Request{
		Messages:       []quizai.Message{quizai.UserMessage("plan", "")},
		ResponseSchema: quizai.PlanSchema(),
	})
	gt.NoError(t, err).Required()
	gt.Equal(t, api.config.ResponseMIMEType, "application/json")
	gt.Equal(t, api.config.ResponseSchema.Type, genai.TypeObject)
	gt.Value(t, api.config.ResponseSchema.Properties["steps"]).NotNil()
	gt.Equal(t, api.config.ResponseSchema.Properties["steps"].Type, genai.TypeArray)
}

func TestGenerateFinishReason(t *testing.T) {
	testCases := map[string]struct {
		reason   genai.FinishReason
		expected error
	}{
		"malformed function call": {reason: genai.FinishReasonMalformedFunctionCall, expected: gemini.ErrMalformedFunctionCall},
		"prohibited content":      {reason: genai.FinishReasonProhibitedContent, expected: gemini.ErrProhibitedContent},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			api := &apiMock{resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: tc.reason}},
			}}
			client := gemini.NewWithAPIClient(api, "m")
			_, err := client.Generate(context.Background(), &quizai.Request{
				Messages: []quizai.Message{quizai.UserMessage("hi", "")},
			})
			gt.True(t, errors.Is(err, tc.expected))
		})
	}
}

func TestStream(t *testing.T) {
	api := &apiMock{stream: []gemini.StreamResponse{
		{Resp: textResponse("Hel")},
		{Resp: textResponse("lo")},
		{Resp: &genai.GenerateContentResponse{
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 2},
		}},
	}}
	client := gemini.NewWithAPIClient(api, "m")

	var chunks []string
	resp, err := client.Stream(context.Background(), &quizai.Request{
		Messages: []quizai.Message{quizai.UserMessage("hi", "")},
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	gt.NoError(t, err).Required()
	gt.Equal(t, chunks, []string{"Hel", "lo"})
	gt.Equal(t, resp.Text(), "Hello")
	gt.Equal(t, resp.InputToken, 4)

	t.Run("stream error", func(t *testing.T) {
		api := &apiMock{stream: []gemini.StreamResponse{
			{Resp: textResponse("a")},
			{Err: errors.New("connection reset")},
		}}
		_, err := gemini.NewWithAPIClient(api, "m").Stream(context.Background(), &quizai.Request{
			Messages: []quizai.Message{quizai.UserMessage("hi", "")},
		}, func(string) error { return nil })
		gt.Error(t, err)
	})
}

func TestConvertMessages(t *testing.T) {
	system, contents := gemini.ConvertMessages([]quizai.Message{
		quizai.SystemMessage("sys"),
		quizai.UserMessage("task", ""),
		{
			Role:      quizai.RoleAssistant,
			ToolCalls: []*quizai.FunctionCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "a"}}},
		},
		{Role: quizai.RoleTool, Name: "echo", Content: "a", ToolCallID: "c1"},
		quizai.UserMessage("next", "feedback"),
	})

	gt.Equal(t, system.Parts[0].Text, "sys")
	gt.A(t, contents).Length(3)
	gt.Equal(t, contents[0].Role, "user")
	gt.Equal(t, contents[1].Role, "model")
	gt.Equal(t, contents[1].Parts[0].FunctionCall.Name, "echo")
	gt.Equal(t, contents[2].Role, "user")
	gt.A(t, contents[2].Parts).Length(2)
	gt.Equal(t, contents[2].Parts[0].FunctionResponse.Name, "echo")
	gt.Equal(t, contents[2].Parts[0].FunctionResponse.Response, map[string]any{"content": "a"})
	gt.Equal(t, contents[2].Parts[1].Text, "next")
}

func TestConvertParameterToSchema(t *testing.T) {
	minimum := 1.0
	maxItems := 3
	schema := gemini.ConvertParameterToSchema(&quizai.Parameter{
		Type: quizai.TypeObject,
		Properties: map[string]*quizai.Parameter{
			"count": {Type: quizai.TypeInteger, Minimum: &minimum},
			"tags":  {Type: quizai.TypeArray, Items: &quizai.Parameter{Type: quizai.TypeString}, MaxItems: &maxItems},
			"kind":  {Type: quizai.TypeString, Enum: []string{"a", "b"}},
		},
	})

	gt.Equal(t, schema.Type, genai.TypeObject)
	gt.Equal(t, schema.Required, []string{})
	gt.Equal(t, *schema.Properties["count"].Minimum, 1.0)
	gt.Equal(t, schema.Properties["tags"].Items.Type, genai.TypeString)
	gt.Equal(t, *schema.Properties["tags"].MaxItems, int64(3))
	gt.Equal(t, schema.Properties["kind"].Enum, []string{"a", "b"})
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := gemini.New(context.Background(), "")
	gt.Error(t, err)

	_, err = gemini.New(context.Background(), "", gemini.WithVertexAI("project", ""))
	gt.Error(t, err)
}

func TestGeminiGenerateLive(t *testing.T) {
	apiKey, ok := os.LookupEnv("TEST_GEMINI_API_KEY")
	if !ok {
		t.Skip("TEST_GEMINI_API_KEY is not set")
	}

	client, err := gemini.New(context.Background(), apiKey)
	gt.NoError(t, err).Required()

	resp, err := client.Generate(context.Background(), &quizai.Request{
		Messages: []quizai.Message{quizai.UserMessage("Say hello in one word", "")},
	})
	gt.NoError(t, err).Required()
	gt.N(t, len(resp.Text())).Greater(0)
}
