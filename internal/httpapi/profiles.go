package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emorobcare/companion/internal/docstore"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "child_id")

	profile, err := s.store.GetProfile(r.Context(), childID)
	if errors.Is(err, docstore.ErrNotFound) {
		respondError(w, http.StatusNotFound, "profile_not_found", "no such profile")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "child_id")

	var profile docstore.ChildProfile
	if err := decodeJSON(r, &profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	profile.ChildID = childID
	if profile.Level < 0 || profile.Level > 5 {
		respondError(w, http.StatusBadRequest, "invalid_request", "level must be between 1 and 5")
		return
	}
	if profile.Age != 0 && (profile.Age < 5 || profile.Age > 13) {
		respondError(w, http.StatusBadRequest, "invalid_request", "age must be between 5 and 13")
		return
	}
	if profile.Language != "" {
		lang := strings.ToLower(strings.TrimSpace(profile.Language))
		if lang != "es" && lang != "en" {
			respondError(w, http.StatusBadRequest, "invalid_request", "language must be es or en")
			return
		}
		profile.Language = lang
	}

	if err := s.store.UpsertProfile(r.Context(), profile); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	stored, err := s.store.GetProfile(r.Context(), childID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stored)
}
