package claude

var (
	ConvertMessages   = convertMessages
	ConvertTool       = convertTool
	SchemaInstruction = schemaInstruction
)

type APIClient = apiClient

// NewWithAPIClient creates a client backed by the given API client.
func NewWithAPIClient(api apiClient, model string) *Client {
	return &Client{api: api, model: model, params: generationParameters{MaxTokens: DefaultMaxTokens}}
}
