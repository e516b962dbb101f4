// ABOUTME: Handlers for the chat endpoints and the health check
// ABOUTME: Maps service errors onto HTTP status codes with JSON error bodies

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
)

// handleGetChat resolves the conversations for the requesting user.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	var req GetChatRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	s.respondChat(w, r, req.User.participant())
}

// handlePostChat merges a conversation delta, then answers like handleGetChat.
func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	var req PostChatRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	conv := req.ChatPayload.conversation(store.Timestamp(s.now()))
	if err := s.svc.AppendConversationDelta(r.Context(), conv); err != nil {
		s.logger.Error("appending conversation delta failed",
			"channel_id", conv.ChannelID,
			"error", err)
		s.writeError(w, err)
		return
	}

	s.respondChat(w, r, req.User.participant())
}

func (s *Server) respondChat(w http.ResponseWriter, r *http.Request, p store.Participant) {
	ctx := r.Context()

	convs, err := s.svc.GetConversations(ctx, p)
	if err != nil {
		s.logger.Error("resolving conversations failed",
			"participant_id", p.ID,
			"error", err)
		s.writeError(w, err)
		return
	}

	// The directory is supplementary; a failing users collection degrades
	// the response instead of failing it.
	users, err := s.svc.ListUsers(ctx)
	if err != nil {
		s.logger.Warn("listing users failed", "error", err)
		users = []store.Participant{}
	}

	h := hitFromContext(ctx)
	writeJSON(w, http.StatusOK, ChatResponse{
		Count: h.count,
		ID:    h.ip,
		Chat:  convs,
		Users: users,
	})
}

// handleHealth pings storage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.svc.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error onto an HTTP status code. Codec failures on stored
// data fall through to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrInvalidConversation),
		errors.Is(err, conversation.ErrInvalidParticipant):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrStoreConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Server-side failures are not
// echoed to the caller.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	if status == http.StatusBadRequest {
		msg = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
