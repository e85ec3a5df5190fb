package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emorobcare/companion/internal/assembler"
	"github.com/emorobcare/companion/internal/conversation"
	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/vectorstore"
)

type startRequest struct {
	Child    string `json:"child"`
	Topic    string `json:"topic"`
	Level    int    `json:"level"`
	Language string `json:"language"`
}

type startResponse struct {
	ConversationID   string    `json:"conversation_id"`
	StartingSentence string    `json:"starting_sentence"`
	End              bool      `json:"end"`
	Emotion          string    `json:"emotion"`
	Timestamp        time.Time `json:"timestamp"`
}

type nextWireRequest struct {
	ConversationID string   `json:"conversation_id"`
	UserSentence   string   `json:"user_sentence"`
	End            bool     `json:"end"`
	ASRConfidence  *float64 `json:"asr_confidence,omitempty"`
}

type replyResponse struct {
	Reply       string    `json:"reply"`
	End         bool      `json:"end"`
	Emotion     string    `json:"emotion"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Blocked     bool      `json:"blocked,omitempty"`
	Category    string    `json:"category,omitempty"`
}

func toReplyResponse(reply conversation.Reply) replyResponse {
	return replyResponse{
		Reply:       reply.Turn.Text,
		End:         reply.Conversation.State == docstore.StateClosed,
		Emotion:     reply.Turn.Emotion,
		Timestamp:   reply.Turn.CreatedAt,
		Suggestions: reply.Suggestions,
		Blocked:     reply.Blocked,
		Category:    string(reply.Category),
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Child) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "child is required")
		return
	}

	reply, err := s.orch.Start(r.Context(), conversation.StartRequest{
		ChildID:  req.Child,
		Topic:    req.Topic,
		Level:    req.Level,
		Language: req.Language,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, startResponse{
		ConversationID:   reply.Conversation.ID,
		StartingSentence: reply.Turn.Text,
		End:              false,
		Emotion:          reply.Turn.Emotion,
		Timestamp:        reply.Turn.CreatedAt,
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var req nextWireRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "conversation_id is required")
		return
	}

	reply, err := s.orch.Next(r.Context(), req.ConversationID, conversation.NextRequest{
		Text:          req.UserSentence,
		ASRConfidence: req.ASRConfidence,
		End:           req.End,
	})
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "no such conversation")
	case errors.Is(err, conversation.ErrConversationClosed):
		respondError(w, http.StatusConflict, "conversation_closed", "conversation is closed")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, toReplyResponse(reply))
	}
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, docstore.ErrNotFound) {
		respondError(w, http.StatusNotFound, "conversation_not_found", "no such conversation")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	turns, err := s.store.ListTurns(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"turns":        turns,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "child_id")
	limit := queryInt(r, "limit", 20)

	convs, err := s.store.ListConversations(r.Context(), childID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"child_id":      childID,
		"conversations": convs,
	})
}

// handleMemoryContext returns the same context bundle the orchestrator
// would assemble for a turn, for inspection and tuning.
func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "child_id")
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter query is required")
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))

	bundle := s.assembler.Assemble(r.Context(), assembler.Request{
		ChildID: childID,
		Topic:   topic,
		Query:   query,
		Limit:   queryInt(r, "limit", 3),
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"child_id": childID,
		"topic":    topic,
		"query":    query,
		"context":  bundle.Snippets,
		"count":    len(bundle.Snippets),
		"sources":  bundle.SourceStatus,
	})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "child_id")
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter query is required")
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))

	hits, err := s.vectors.Search(r.Context(), vectorstore.Query{
		Text:     query,
		ChildID:  childID,
		Topic:    topic,
		Limit:    queryInt(r, "limit", 10),
		MinScore: queryFloat(r, "min_score", 0),
	})
	if err != nil {
		s.metrics.ObserveAdapterError("vectors", "search")
		respondError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"child_id": childID,
		"query":    query,
		"topic":    topic,
		"results":  hits,
		"count":    len(hits),
	})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversation_id")

	deleted, err := s.vectors.DeleteConversation(r.Context(), conversationID)
	if err != nil {
		s.metrics.ObserveAdapterError("vectors", "delete")
		respondError(w, http.StatusBadGateway, "delete_failed", err.Error())
		return
	}
	if deleted == 0 {
		respondError(w, http.StatusNotFound, "memory_not_found", "no memories for conversation "+conversationID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Conversation %s deleted from memory", conversationID),
		"deleted": deleted,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
