package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/emorobcare/companion/internal/conversation"
	"github.com/emorobcare/companion/internal/docstore"
)

type wsTurnMessage struct {
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	ASRConfidence *float64 `json:"asr_confidence,omitempty"`
	End           bool     `json:"end,omitempty"`
}

type wsReplyMessage struct {
	Type  string        `json:"type"`
	Reply replyResponse `json:"reply"`
}

type wsErrorMessage struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// handleSessionWS drives a live conversation over one websocket: the
// client sends turn messages, the server answers with the assistant
// reply. Turns are handled one at a time in arrival order.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "missing_conversation_id", "query parameter conversation_id is required")
		return
	}
	if _, err := s.store.GetConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation_not_found", "no such conversation")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	writeJSON := func(v any, msgType string) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			return false
		}
		s.metrics.ObserveWSMessage("outbound", msgType)
		return true
	}

	for {
		var msg wsTurnMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		if msg.Type != "turn" {
			if !writeJSON(wsErrorMessage{Type: "error", Code: "invalid_message", Detail: "expected type turn"}, "error") {
				return
			}
			continue
		}
		s.metrics.ObserveWSMessage("inbound", "turn")

		reply, err := s.orch.Next(r.Context(), conversationID, conversation.NextRequest{
			Text:          msg.Text,
			ASRConfidence: msg.ASRConfidence,
			End:           msg.End,
		})
		switch {
		case errors.Is(err, conversation.ErrConversationClosed):
			writeJSON(wsErrorMessage{Type: "error", Code: "conversation_closed", Detail: "conversation is closed"}, "error")
			return
		case err != nil:
			if !writeJSON(wsErrorMessage{Type: "error", Code: "turn_failed", Detail: err.Error()}, "error") {
				return
			}
			continue
		}

		if !writeJSON(wsReplyMessage{Type: "reply", Reply: toReplyResponse(reply)}, "reply") {
			return
		}
		if reply.Conversation.State == docstore.StateClosed {
			return
		}
	}
}
