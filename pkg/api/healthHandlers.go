package api

import (
	"net/http"
	"time"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": s.cfg.Observability.ServiceName,
		"message": "order event hub",
	})
}

// handleHealth reports process health plus, when a checker is wired in, an
// out-of-band broker reachability probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"success":   true,
		"service":   s.cfg.Observability.ServiceName,
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.health != nil {
		if s.health.CheckHealth(r.Context()) {
			body["broker"] = "reachable"
		} else {
			body["broker"] = "unreachable"
		}
	}

	s.writeJSON(w, http.StatusOK, body)
}
