package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/mcp"
)

const defaultThreadID = "__default__"

type apiError struct {
	Error string `json:"error"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, apiError{Error: msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatContent accepts either a string or a list of typed items, of which
// the text items are joined.
type chatContent string

func (c *chatContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = chatContent(text)
		return nil
	}

	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	var texts []string
	for _, item := range items {
		if item.Type == "text" && item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	*c = chatContent(strings.Join(texts, "\n"))
	return nil
}

type chatMessage struct {
	Role    quizai.Role `json:"role"`
	Content chatContent `json:"content"`
}

// chatRequest is the body of POST /api/chat/stream. Unset optional fields
// take the defaults of quizai.DefaultConfig.
type chatRequest struct {
	Messages                      []chatMessage       `json:"messages"`
	ThreadID                      string              `json:"thread_id"`
	MaxPlanIterations             *int                `json:"max_plan_iterations"`
	MaxStepNum                    *int                `json:"max_step_num"`
	MaxSearchResults              *int                `json:"max_search_results"`
	AutoAcceptedPlan              bool                `json:"auto_accepted_plan"`
	InterruptFeedback             string              `json:"interrupt_feedback"`
	MCPSettings                   *mcp.Settings       `json:"mcp_settings"`
	EnableBackgroundInvestigation *bool               `json:"enable_background_investigation"`
	ReportStyle                   *quizai.ReportStyle `json:"report_style"`
	EnableDeepThinking            bool                `json:"enable_deep_thinking"`
}

func (r *chatRequest) config(recursionLimit int) quizai.Config {
	cfg := quizai.DefaultConfig()
	if r.MaxPlanIterations != nil {
		cfg.MaxPlanIterations = *r.MaxPlanIterations
	}
	if r.MaxStepNum != nil {
		cfg.MaxStepNum = *r.MaxStepNum
	}
	if r.MaxSearchResults != nil {
		cfg.MaxSearchResults = *r.MaxSearchResults
	}
	if r.EnableBackgroundInvestigation != nil {
		cfg.EnableBackgroundInvestigation = *r.EnableBackgroundInvestigation
	}
	if r.ReportStyle != nil {
		cfg.ReportStyle = *r.ReportStyle
	}
	if recursionLimit > 0 {
		cfg.RecursionLimit = recursionLimit
	}
	cfg.AutoAcceptedPlan = r.AutoAcceptedPlan
	cfg.EnableDeepThinking = r.EnableDeepThinking
	return cfg
}

func (r *chatRequest) messages() []quizai.Message {
	msgs := make([]quizai.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		role := m.Role
		if role == "" {
			role = quizai.RoleUser
		}
		msgs = append(msgs, quizai.Message{Role: role, Content: string(m.Content)})
	}
	return msgs
}

// resumeValue is "[{feedback}] {last message}", or "" when the request
// starts a new turn.
func (r *chatRequest) resumeValue() string {
	if r.AutoAcceptedPlan || r.InterruptFeedback == "" {
		return ""
	}
	value := "[" + r.InterruptFeedback + "]"
	if n := len(r.Messages); n > 0 {
		value += " " + string(r.Messages[n-1].Content)
	}
	return value
}

// sseWriter writes events as text/event-stream.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) write(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		event = "error"
		raw, _ = json.Marshal(apiError{Error: "Serialization failed"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MCPSettings != nil && !s.mcpEnabled {
		s.writeError(w, http.StatusForbidden, "MCP server configuration is disabled, set ENABLE_MCP_SERVER_CONFIGURATION=true")
		return
	}
	if req.ThreadID == "" || req.ThreadID == defaultThreadID {
		req.ThreadID = uuid.NewString()
	}

	cfg := req.config(s.recursionLimit)
	if err := cfg.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	logger := s.logger.With("thread_id", req.ThreadID)

	var opts []quizai.RunOption
	if req.MCPSettings != nil {
		sets, err := s.openMCP(ctx, *req.MCPSettings)
		if err != nil {
			logger.Warn("failed to open MCP servers", "error", err)
			s.writeError(w, http.StatusBadRequest, "failed to connect MCP servers")
			return
		}
		defer func() {
			if err := sets.Close(); err != nil {
				logger.Warn("failed to close MCP servers", "error", err)
			}
		}()
		opts = sets.RunOptions()
	}

	sse := newSSEWriter(w)
	opts = append(opts, quizai.WithEventHook(func(ctx context.Context, ev *quizai.Event) error {
		return sse.write(string(ev.Type), ev)
	}))

	var err error
	if value := req.resumeValue(); value != "" {
		_, err = s.workflow.Resume(ctx, req.ThreadID, value, opts...)
	} else {
		_, err = s.workflow.Run(ctx, req.ThreadID, req.messages(), cfg, opts...)
	}
	if err != nil {
		logger.Error("chat stream failed", "error", err)
		if !errors.Is(err, context.Canceled) {
			_ = sse.write("error", map[string]string{"thread_id": req.ThreadID, "error": err.Error()})
		}
	}
}

func (s *server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	cp, err := s.workflow.Checkpoint(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, quizai.ErrCheckpointNotFound) {
			s.writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		s.logger.Error("failed to load checkpoint", "error", err, "thread_id", threadID)
		s.writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

type listTracesResponse struct {
	Traces        []traceSummary `json:"traces"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (s *server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	pageSizeStr := r.URL.Query().Get("page_size")
	pageToken := r.URL.Query().Get("page_token")

	pageSize := 20
	if pageSizeStr != "" {
		n, err := strconv.Atoi(pageSizeStr)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid page_size parameter")
			return
		}
		pageSize = n
	}

	resp, err := s.source.List(r.Context(), listRequest{
		pageSize:  pageSize,
		pageToken: pageToken,
	})
	if err != nil {
		s.logger.Error("failed to list traces", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}

	traces := resp.traces
	if traces == nil {
		traces = []traceSummary{}
	}
	s.writeJSON(w, http.StatusOK, listTracesResponse{
		Traces:        traces,
		NextPageToken: resp.nextPageToken,
	})
}

func (s *server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("id")

	t, err := s.source.Get(r.Context(), traceID)
	if err != nil {
		if errors.Is(err, errTraceNotFound) {
			s.writeError(w, http.StatusNotFound, "trace not found")
			return
		}
		s.logger.Error("failed to get trace", "error", err, "trace_id", traceID)
		s.writeError(w, http.StatusInternalServerError, "failed to get trace")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}
