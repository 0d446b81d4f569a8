package search

import (
	"context"
)

var (
	ParseDuckDuckGo = parseDuckDuckGo
)

type CallerFunc func(ctx context.Context, input string) (string, error)

func (f CallerFunc) Call(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// NewDuckDuckGoWithCaller creates a DuckDuckGo searcher backed by fn.
func NewDuckDuckGoWithCaller(fn CallerFunc) *DuckDuckGo {
	return &DuckDuckGo{
		newTool: func(int) (caller, error) { return fn, nil },
	}
}

// SetWikipediaCaller replaces the langchaingo tool of w.
func SetWikipediaCaller(w *Wikipedia, fn func(topK int) CallerFunc) {
	w.newTool = func(topK int) caller { return fn(topK) }
}
