package httpapi

import (
	"net/http"
	"strings"

	"github.com/emorobcare/companion/internal/graphstore"
)

type kgQueryRequest struct {
	SPARQL string `json:"sparql"`
}

func (s *Server) handleKGQuery(w http.ResponseWriter, r *http.Request) {
	var req kgQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SPARQL) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "sparql is required")
		return
	}

	res, err := s.graph.Query(r.Context(), req.SPARQL)
	if err != nil {
		s.metrics.ObserveAdapterError("graph", "query")
		respondError(w, http.StatusBadGateway, "query_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type kgTriplesRequest struct {
	Triples []graphstore.Triple `json:"triples"`
}

// handleKGInsert runs the same validate-then-commit path the extraction
// pipeline uses: non-conforming batches are rejected whole.
func (s *Server) handleKGInsert(w http.ResponseWriter, r *http.Request) {
	var req kgTriplesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Triples) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "triples is required")
		return
	}

	report, err := s.graph.Validate(r.Context(), req.Triples)
	if err != nil {
		s.metrics.ObserveAdapterError("graph", "validate")
		respondError(w, http.StatusBadGateway, "validation_failed", err.Error())
		return
	}
	if !report.Conforms {
		respondJSON(w, http.StatusUnprocessableEntity, report)
		return
	}

	if err := s.graph.Update(r.Context(), graphstore.InsertData(req.Triples)); err != nil {
		s.metrics.ObserveAdapterError("graph", "update")
		respondError(w, http.StatusBadGateway, "insert_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"inserted": len(req.Triples),
	})
}

func (s *Server) handleKGValidate(w http.ResponseWriter, r *http.Request) {
	var req kgTriplesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Triples) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "triples is required")
		return
	}

	report, err := s.graph.Validate(r.Context(), req.Triples)
	if err != nil {
		s.metrics.ObserveAdapterError("graph", "validate")
		respondError(w, http.StatusBadGateway, "validation_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}
