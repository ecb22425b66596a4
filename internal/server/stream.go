package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"bilichat/internal/app"
	"bilichat/internal/util"
	"bilichat/pkg/domain"
	"bilichat/pkg/i18n"
)

// handleStreamChat relays generation chunks as server-sent events. Each event
// is a single JSON payload on a data: line; the final event carries the full
// response and the persisted chat.
func (s *Server) handleStreamChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, i18n.T(user.Language, "error_invalid_input"))
		return
	}
	if req.Model == "" {
		req.Model = domain.ModelLlama
	}
	// Validation must settle before the SSE headers go out; after that the
	// stream is the only channel left for reporting anything.
	if !domain.KnownModel(req.Model) || !validRoles(req.Messages) || app.ValidateChatRequest(req) != nil {
		writeError(w, http.StatusBadRequest, i18n.T(user.Language, "error_invalid_input"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.serverError(w, r, user.Language, fmt.Errorf("response writer does not support flushing"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := func(event any) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.app.StreamChat(r.Context(), user, req, sink); err != nil {
		// Headers are already sent; the error event over the stream is the
		// only channel left to the client.
		util.LoggerFromContext(r.Context()).Error("stream aborted", "user_id", user.ID, "err", err)
	}
}
