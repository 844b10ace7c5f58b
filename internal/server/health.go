package server

import "net/http"

type healthBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth reports liveness. No auth, no dependencies touched.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Status: "healthy", Version: s.deps.Version})
}
