package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhengjr9/admin-chat/internal/chat"
)

// wsMessage is the frame format in both directions. Clients send "message"
// and "cancel"; the server sends "fragment", "outcome" and "error".
type wsMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Text      string          `json:"text,omitempty"`
	Error     string          `json:"error,omitempty"`
	Outcome   *outcomePayload `json:"outcome,omitempty"`
}

// handleChatWS serves many sequential turns over one socket. Only this
// goroutine writes to the connection; a helper goroutine owns reads.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// the server's read and write timeouts must not apply to a long-lived socket
	_ = conn.NetConn().SetDeadline(time.Time{})

	// cancelled when the client closes the socket
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	incoming := make(chan wsMessage)
	go func() {
		defer cancel()
		defer close(incoming)
		for {
			var m wsMessage
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			select {
			case incoming <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-incoming:
			if !ok {
				return
			}
			if m.Type != "message" {
				continue
			}
			turn, err := s.service.SendMessage(ctx, m.SessionID, m.Message)
			if err != nil {
				if err := conn.WriteJSON(wsMessage{Type: "error", Error: err.Error()}); err != nil {
					return
				}
				continue
			}
			if !s.relayTurn(conn, turn, incoming) {
				return
			}
		}
	}
}

// relayTurn forwards one turn to the socket while still honoring "cancel"
// frames. It reports whether the socket is still usable.
func (s *Server) relayTurn(conn *websocket.Conn, turn *chat.Turn, incoming <-chan wsMessage) bool {
	healthy := true
	frags := turn.Fragments()
	for frags != nil {
		select {
		case f, ok := <-frags:
			if !ok {
				frags = nil
				continue
			}
			if !healthy {
				continue
			}
			if err := conn.WriteJSON(wsMessage{Type: "fragment", Text: f}); err != nil {
				s.logger.Debug("websocket write failed", "turn_id", turn.ID(), "error", err)
				healthy = false
				turn.Cancel()
			}
		case m, ok := <-incoming:
			switch {
			case !ok:
				healthy = false
				incoming = nil
				turn.Cancel()
			case m.Type == "cancel":
				turn.Cancel()
			case m.Type == "message" && healthy:
				if err := conn.WriteJSON(wsMessage{Type: "error", Error: "a turn is already in progress"}); err != nil {
					healthy = false
					turn.Cancel()
				}
			}
		}
	}

	out := newOutcomePayload(turn, turn.Outcome())
	if !healthy {
		return false
	}
	if err := conn.WriteJSON(wsMessage{Type: "outcome", Outcome: &out}); err != nil {
		return false
	}
	return true
}
