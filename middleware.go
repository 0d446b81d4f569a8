package quizai

import "context"

// GenerateHandler handles a generation request synchronously.
type GenerateHandler func(ctx context.Context, req *Request) (*Response, error)

// StreamHandler handles a generation request with streaming.
type StreamHandler func(ctx context.Context, req *Request, fn func(chunk string) error) (*Response, error)

// Middleware wraps the calls of an LLMClient. Either field may be nil.
type Middleware struct {
	Generate func(next GenerateHandler) GenerateHandler
	Stream   func(next StreamHandler) StreamHandler
}

type middlewareClient struct {
	generate GenerateHandler
	stream   StreamHandler
}

func (c *middlewareClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	return c.generate(ctx, req)
}

func (c *middlewareClient) Stream(ctx context.Context, req *Request, fn func(chunk string) error) (*Response, error) {
	return c.stream(ctx, req, fn)
}

// WithMiddleware wraps client. The middlewares are applied in the order they
// are provided, so the first one sees the request first.
func WithMiddleware(client LLMClient, middlewares ...Middleware) LLMClient {
	if len(middlewares) == 0 {
		return client
	}

	generate := GenerateHandler(client.Generate)
	stream := StreamHandler(client.Stream)
	for i := len(middlewares) - 1; i >= 0; i-- {
		if m := middlewares[i].Generate; m != nil {
			generate = m(generate)
		}
		if m := middlewares[i].Stream; m != nil {
			stream = m(stream)
		}
	}
	return &middlewareClient{generate: generate, stream: stream}
}
