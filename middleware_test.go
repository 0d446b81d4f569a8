package quizai_test

import (
	"context"
	"testing"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/gt"
)

type staticLLM struct {
	text string
}

func (s *staticLLM) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	return &quizai.Response{Texts: []string{s.text}}, nil
}

func (s *staticLLM) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	if err := fn(s.text); err != nil {
		return nil, err
	}
	return &quizai.Response{Texts: []string{s.text}}, nil
}

func tagging(tag string, order *[]string) quizai.Middleware {
	return quizai.Middleware{
		Generate: func(next quizai.GenerateHandler) quizai.GenerateHandler {
			return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
				*order = append(*order, tag)
				return next(ctx, req)
			}
		},
		Stream: func(next quizai.StreamHandler) quizai.StreamHandler {
			return func(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
				*order = append(*order, "stream:"+tag)
				return next(ctx, req, func(chunk string) error {
					return fn(tag + chunk)
				})
			}
		},
	}
}

func TestWithMiddleware(t *testing.T) {
	ctx := context.Background()
	base := &staticLLM{text: "x"}

	t.Run("no middleware returns the client", func(t *testing.T) {
		gt.True(t, quizai.WithMiddleware(base) == quizai.LLMClient(base))
	})

	t.Run("applied in order", func(t *testing.T) {
		var order []string
		client := quizai.WithMiddleware(base, tagging("a", &order), tagging("b", &order))

		_, err := client.Generate(ctx, &quizai.Request{})
		gt.NoError(t, err)
		gt.Equal(t, order, []string{"a", "b"})

		var chunks []string
		_, err = client.Stream(ctx, &quizai.Request{}, func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
		gt.NoError(t, err)
		gt.Equal(t, order[2:], []string{"stream:a", "stream:b"})
		gt.Equal(t, chunks, []string{"abx"})
	})

	t.Run("nil handlers pass through", func(t *testing.T) {
		client := quizai.WithMiddleware(base, quizai.Middleware{})
		resp, err := client.Generate(ctx, &quizai.Request{})
		gt.NoError(t, err)
		gt.Equal(t, resp.Text(), "x")
	})
}
