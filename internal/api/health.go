package api

import (
	"net/http"
	"time"
)

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"line_items": len(s.Catalog.GetAllLineItems()),
	})

	s.observe(endpoint, method, http.StatusOK, start)
}
