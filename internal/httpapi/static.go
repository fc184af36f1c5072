package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/mbtivoice/internal/artifact"
)

var artifactContentTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		respondError(w, http.StatusNotFound, "artifact_not_found", "artifact storage disabled")
		return
	}
	path, err := s.artifacts.Resolve(r.Context(), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, artifact.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "invalid_artifact_name", err.Error())
		return
	case errors.Is(err, artifact.ErrNotFound):
		respondError(w, http.StatusNotFound, "artifact_not_found", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if ct, ok := artifactContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}
