package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/zhengjr9/admin-chat/internal/chat"
	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
	"github.com/zhengjr9/admin-chat/internal/httputil"
	"github.com/zhengjr9/admin-chat/internal/stream"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type fragmentPayload struct {
	Text string `json:"text"`
}

// outcomePayload is the terminal event of a turn as the UI sees it.
type outcomePayload struct {
	TurnID    string        `json:"turn_id"`
	Status    stream.Status `json:"status"`
	Kind      string        `json:"kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Fragments int           `json:"fragments"`
	Truncated bool          `json:"truncated,omitempty"`
}

func newOutcomePayload(turn *chat.Turn, out stream.Outcome) outcomePayload {
	p := outcomePayload{
		TurnID:    turn.ID(),
		Status:    out.Status,
		Fragments: out.Fragments,
		Truncated: out.Truncated(),
	}
	if out.Failed() {
		p.Kind = apierrors.KindOf(out.Err).String()
		p.Error = out.Reason()
	}
	return p
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	result, err := s.service.ListSessions(r.Context(), page, size)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var body renameRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.WriteError(w, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err))
		return
	}
	sess, err := s.service.RenameSession(r.Context(), mux.Vars(r)["id"], body.Title)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		apierrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChat streams one turn as Server-Sent Events: a "fragment" event per
// piece of text, then exactly one "outcome" event. A client disconnect
// cancels the turn through the request context.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.WriteError(w, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err))
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		apierrors.WriteJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	turn, err := s.service.SendMessage(r.Context(), body.SessionID, body.Message)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}

	httputil.SetSSEHeaders(w)
	w.Header().Set("X-Turn-ID", turn.ID())
	w.WriteHeader(http.StatusOK)

	for ev := range turn.Events() {
		if ev.IsOutcome() {
			if err := httputil.WriteSSE(w, "outcome", newOutcomePayload(turn, *ev.Outcome)); err != nil {
				s.logger.Debug("write outcome", "turn_id", turn.ID(), "error", err)
			}
			return
		}
		if err := httputil.WriteSSE(w, "fragment", fragmentPayload{Text: ev.Fragment}); err != nil {
			s.logger.Debug("client went away", "turn_id", turn.ID(), "error", err)
			turn.Cancel()
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
