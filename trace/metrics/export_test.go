package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SetNow replaces the clock of h.
func SetNow(h *Handler, now func() time.Time) {
	h.now = now
}

// LLMCalls returns the llm call counter of h.
func (h *Handler) LLMCalls() *prometheus.CounterVec {
	return h.llmCalls
}
