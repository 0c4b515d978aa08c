package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const productCreatedEvent = "product.created"

// handleProductCreate forwards an arbitrary product record to the broker. The
// record is opaque here; catalog validation belongs to the producing
// application.
func (s *Server) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var product map[string]any
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	if err := s.publisher.Publish(r.Context(), productCreatedEvent, product); err != nil {
		s.logger.Error("failed to publish product event", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to publish product event"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "product event published",
		"product": product,
	})
}
