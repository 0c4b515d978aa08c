package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// respondError writes the standard failure body. err detail only leaks into
// the response in development mode; production clients get the message alone.
func (s *Server) respondError(w http.ResponseWriter, status int, message string, err error, fields ...string) {
	body := map[string]any{
		"success": false,
		"error":   message,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	if err != nil && s.cfg.Server.DevMode {
		body["detail"] = err.Error()
	}
	s.writeJSON(w, status, body)
}
