package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/chat"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/pkg/anthropic"
)

// Client-facing chat error messages.
const (
	MsgRateLimited = "Rate limit exceeded. Please try again in a moment."
	MsgUsageLimit  = "AI usage limit reached. Please add credits to continue."
	MsgUnavailable = "AI service temporarily unavailable"
)

type chatRequest struct {
	Messages []anthropic.Message `json:"messages"`
}

// sseWriter emits server-sent events. Headers are deferred to the first
// event so that failures before any output can still be sent as JSON.
type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *sseWriter) send(data string) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *sseWriter) event(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.send(string(b))
}

func (s *sseWriter) done() error { return s.send("[DONE]") }

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, MsgUnavailable)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n := len(req.Messages)
	if n == 0 || req.Messages[n-1].Role != "user" || strings.TrimSpace(req.Messages[n-1].Content) == "" {
		writeError(w, http.StatusBadRequest, "messages must end with a user message")
		return
	}
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}

	history := chat.TrimHistory(req.Messages[:n-1], s.historyLimit())
	question := req.Messages[n-1].Content

	sse := &sseWriter{w: w}
	_, err := s.chat.Ask(r.Context(), history, question, b.Records, func(text string) error {
		return sse.event(map[string]string{"text": text})
	})
	if err != nil {
		if sse.started {
			zap.L().Warn("server: chat stream interrupted", zap.String("batch_id", b.ID), zap.Error(err))
			_ = sse.event(map[string]string{"error": MsgUnavailable})
			return
		}
		status, msg := chatErrorStatus(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("server: chat", zap.String("batch_id", b.ID), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}
	_ = sse.done()
}

func (s *Server) historyLimit() int {
	if s.opts.HistoryLimit <= 0 {
		return chat.DefaultHistoryLimit
	}
	return s.opts.HistoryLimit
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusTooManyRequests, MsgRateLimited
	case errors.Is(err, chat.ErrUsageLimit):
		return http.StatusPaymentRequired, MsgUsageLimit
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, MsgUnavailable
	}
	return http.StatusInternalServerError, MsgUnavailable
}
