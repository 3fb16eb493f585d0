package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// errorResponse is the JSON shape of all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListReports returns the indexed reports, optionally filtered by
// discovery path via ?path=.
func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	var (
		reports any
		err     error
	)

	if path := r.URL.Query().Get("path"); path != "" {
		reports, err = s.indexStore.ListReports(r.Context(), path)
	} else {
		reports, err = s.indexStore.ListAllReports(r.Context())
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing reports: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generated": time.Now().Unix(),
		"reports":   reports,
	})
}

// handleGetReport returns one indexed report.
func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	configurationID := chi.URLParam(r, "configuration")

	report, err := s.indexStore.GetReport(r.Context(), path, configurationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting report: " + err.Error()})

		return
	}

	if report == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"report not found"})

		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleFileRequest serves a report file from the discovery paths.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")

	if err := s.fileServer.ServeFile(w, r, filePath); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"file not found"})
	}
}
