package gemini

import (
	"google.golang.org/genai"
)

var (
	ConvertMessages          = convertMessages
	ConvertTool              = convertTool
	ConvertParameterToSchema = convertParameterToSchema
)

type APIClient = apiClient

// NewWithAPIClient creates a client backed by the given API client.
func NewWithAPIClient(api apiClient, model string, options ...Option) *Client {
	c := &Client{api: api, model: model}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// GenerationConfig returns the generation config of c.
func (c *Client) GenerationConfig() genai.GenerateContentConfig {
	return c.generationConfig
}
