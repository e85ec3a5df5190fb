package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/emorobcare/companion/internal/assembler"
	"github.com/emorobcare/companion/internal/config"
	"github.com/emorobcare/companion/internal/conversation"
	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/observability"
	"github.com/emorobcare/companion/internal/vectorstore"
)

type Server struct {
	cfg       config.Config
	orch      *conversation.Orchestrator
	store     docstore.Store
	vectors   vectorstore.Store
	graph     graphstore.Store
	assembler *assembler.Assembler
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, orch *conversation.Orchestrator, store docstore.Store, vectors vectorstore.Store, graph graphstore.Store, asm *assembler.Assembler, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		orch:      orch,
		store:     store,
		vectors:   vectors,
		graph:     graph,
		assembler: asm,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly
				// opened up. The robot client omits Origin and is allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/conv/start", s.handleStart)
	r.Post("/conv/next", s.handleNext)
	r.Get("/conv/session/ws", s.handleSessionWS)
	r.Get("/conv/child/{child_id}", s.handleListConversations)
	r.Get("/conv/memory/{child_id}/context", s.handleMemoryContext)
	r.Get("/conv/memory/{child_id}/search", s.handleMemorySearch)
	r.Delete("/conv/memory/{conversation_id}", s.handleDeleteMemory)
	r.Get("/conv/{id}", s.handleGetConversation)

	r.Get("/profiles/{child_id}", s.handleGetProfile)
	r.Put("/profiles/{child_id}", s.handlePutProfile)

	r.Post("/kg/query", s.handleKGQuery)
	r.Post("/kg/insert", s.handleKGInsert)
	r.Post("/kg/validate", s.handleKGValidate)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness means the document store answers; retrieval backends may
	// degrade without taking the service down.
	if _, err := s.store.ListConversations(r.Context(), "__readyz__", 1); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
