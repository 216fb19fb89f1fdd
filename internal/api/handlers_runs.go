package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.manifest == nil {
		jsonError(w, "manifest not configured", http.StatusServiceUnavailable)
		return
	}
	run, err := s.manifest.LastRun(r.Context())
	if err != nil {
		jsonError(w, "failed to read manifest: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "no runs recorded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleRunPages lists the page outcomes of a run; ?failed=true keeps only
// the failures.
func (s *Server) handleRunPages(w http.ResponseWriter, r *http.Request) {
	if s.manifest == nil {
		jsonError(w, "manifest not configured", http.StatusServiceUnavailable)
		return
	}
	runID := chi.URLParam(r, "runID")
	pages, err := s.manifest.Pages(r.Context(), runID, r.URL.Query().Get("failed") == "true")
	if err != nil {
		jsonError(w, "failed to read manifest: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if pages == nil {
		pages = []manifest.Page{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"run_id": runID, "pages": pages})
}
