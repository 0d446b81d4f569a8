package gemini

import (
	"context"

	"google.golang.org/genai"
)

// apiClient is the subset of the genai models API used by Client.
type apiClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) <-chan StreamResponse
}

// StreamResponse wraps the response and error from streaming
type StreamResponse struct {
	Resp *genai.GenerateContentResponse
	Err  error
}

type realAPIClient struct {
	client *genai.Client
}

func (r *realAPIClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return r.client.Models.GenerateContent(ctx, model, contents, config)
}

func (r *realAPIClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) <-chan StreamResponse {
	ch := make(chan StreamResponse)
	go func() {
		defer close(ch)
		for resp, err := range r.client.Models.GenerateContentStream(ctx, model, contents, config) {
			select {
			case ch <- StreamResponse{Resp: resp, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
