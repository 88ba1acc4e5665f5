package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/tutor/pkg/content"
	"mercator-hq/tutor/pkg/conversation"
	"mercator-hq/tutor/pkg/session"
)

// DefaultRecentMessages is used when GET .../messages has no n parameter.
const DefaultRecentMessages = 20

type turnRequest struct {
	OwnerID   string          `json:"owner_id"`
	SessionID string          `json:"session_id,omitempty"`
	Scope     string          `json:"scope,omitempty"`
	Context   session.Context `json:"context"`
	Message   string          `json:"message"`
}

type turnResponse struct {
	SessionID  string `json:"session_id"`
	Reply      string `json:"reply"`
	Source     string `json:"source"`
	IsFallback bool   `json:"is_fallback"`
	Attempts   int    `json:"attempts"`
	Degraded   bool   `json:"degraded"`
	NewSession bool   `json:"new_session"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var req turnRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorTypeInvalidRequest, "", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "", "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.deps.Conversation.Turn(r.Context(), conversation.TurnRequest{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Scope:     req.Scope,
		ClientKey: clientKey(r),
		Context:   req.Context,
		Message:   req.Message,
	})
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}

	if result.RateLimit != nil {
		copyHeaders(w.Header(), result.RateLimit.Headers())
	}
	if result.Source == content.SourcePrimary {
		s.deps.Metrics.RecordTokens(result.Reply.PromptTokens, result.Reply.CompletionTokens)
	}

	writeJSON(w, http.StatusOK, turnResponse{
		SessionID:  result.SessionID,
		Reply:      result.Reply.Text,
		Source:     string(result.Source),
		IsFallback: result.IsFallback,
		Attempts:   result.Attempts,
		Degraded:   result.Degraded,
		NewSession: result.NewSession,
	})
}

func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *conversation.ValidationError
	var limited *conversation.RateLimitedError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, validation.Field, validation.Message)
	case errors.As(err, &limited):
		copyHeaders(w.Header(), limited.Decision.Headers())
		writeError(w, http.StatusTooManyRequests, ErrorTypeRateLimitExceeded, "", limited.Error())
	default:
		s.logger.ErrorContext(r.Context(), "turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorTypeServerError, "", "internal error")
	}
}

func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	n := DefaultRecentMessages
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "n", "must be a non-negative integer")
			return
		}
		n = v
	}

	if _, ok := s.deps.Sessions.GetSession(id); !ok {
		writeError(w, http.StatusNotFound, ErrorTypeNotFound, "", "session not found")
		return
	}

	messages := s.deps.Sessions.GetRecentMessages(id, n)
	if messages == nil {
		messages = []session.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   messages,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Sessions.ClearSession(chi.URLParam(r, "sessionID")) {
		writeError(w, http.StatusNotFound, ErrorTypeNotFound, "", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Conversation.EndConversation(chi.URLParam(r, "ownerID"))
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

type rateLimitStatus struct {
	Identifier string     `json:"identifier"`
	Limit      int        `json:"limit"`
	Remaining  int        `json:"remaining"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	limit := s.deps.Limiter.Config().DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "limit", "must be a positive integer")
			return
		}
		limit = v
	}

	status := rateLimitStatus{
		Identifier: identifier,
		Limit:      limit,
		Remaining:  s.deps.Limiter.GetRemaining(r.Context(), identifier, limit),
	}
	if reset, ok := s.deps.Limiter.GetResetTime(r.Context(), identifier); ok {
		status.ResetAt = &reset
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if err := s.deps.Limiter.Reset(r.Context(), identifier); err != nil {
		s.logger.ErrorContext(r.Context(), "rate limit reset failed", "identifier", identifier, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrorTypeServiceUnavailable, "", "rate limit store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clientKey identifies anonymous callers by IP. RealIP has already
// replaced RemoteAddr with the forwarded address when present.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Set(k, v)
		}
	}
}
