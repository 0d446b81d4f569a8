package openai

var (
	ConvertMessage        = convertMessage
	ConvertTool           = convertTool
	ConvertResponseFormat = convertResponseFormat
)

type APIClient = apiClient

// NewWithAPIClient creates a client backed by the given API client.
func NewWithAPIClient(api apiClient, model string) *Client {
	return &Client{api: api, model: model}
}
