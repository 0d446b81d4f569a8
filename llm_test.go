package quizai_test

import (
	"errors"
	"testing"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/gt"
)

func TestLLMRegistry(t *testing.T) {
	reg := quizai.NewLLMRegistry()
	_, err := reg.Get(quizai.LLMTypeBasic)
	gt.True(t, errors.Is(err, quizai.ErrLLMNotConfigured))

	mock := newLLMMock()
	reg.Register(quizai.LLMTypeBasic, mock)
	client, err := reg.Get(quizai.LLMTypeBasic)
	gt.NoError(t, err).Required()
	gt.Equal[quizai.LLMClient](t, client, mock)

	_, err = reg.Get(quizai.LLMTypeVision)
	gt.True(t, errors.Is(err, quizai.ErrLLMNotConfigured))
}

func TestResponseText(t *testing.T) {
	var nilResp *quizai.Response
	gt.Equal(t, nilResp.Text(), "")
	gt.Equal(t, (&quizai.Response{Texts: []string{"a", "b"}}).Text(), "ab")
}

func TestFormatSearchResults(t *testing.T) {
	out := quizai.FormatSearchResults([]*quizai.SearchResult{
		{Title: "One", Content: "first"},
		nil,
		{Title: "Two", Content: "second"},
	})
	gt.Equal(t, out, "## One\n\nfirst\n\n## Two\n\nsecond")
	gt.Equal(t, quizai.FormatSearchResults(nil), "")
}
