package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/broker"
)

const (
	paymentCompletedEvent = "payment.completed"
	defaultCurrency       = "PHP"
	defaultPaymentStatus  = "paid"
)

type paymentWebhookRequest struct {
	EventType       string         `json:"eventType"`
	OrderID         string         `json:"orderId"`
	Amount          any            `json:"amount"` // number or numeric string
	PaymentIntentID string         `json:"paymentIntentId"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	Customer        map[string]any `json:"customer"`
	Items           []any          `json:"items"`
	Timestamp       string         `json:"timestamp"`
	Source          string         `json:"source"`
}

// handlePaymentWebhook receives payment-completed callbacks, validates the
// minimal shape and hands the normalized event to the publisher. Validation
// failures never reach the broker.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	var missing []string
	if strings.TrimSpace(req.EventType) == "" {
		missing = append(missing, "eventType")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		missing = append(missing, "orderId")
	}
	if req.Amount == nil {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		s.respondError(w, http.StatusBadRequest, "missing required fields", nil, missing...)
		return
	}

	if req.EventType != paymentCompletedEvent {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unexpected eventType %q, this endpoint accepts %q", req.EventType, paymentCompletedEvent),
			nil, "eventType")
		return
	}

	amount, err := coerceAmount(req.Amount)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "amount must be a finite number greater than zero", err, "amount")
		return
	}

	now := time.Now().UTC()
	record := normalizePaymentEvent(req, amount, now)

	if err := s.publisher.Publish(r.Context(), paymentCompletedEvent, record); err != nil {
		// Same status either way; the logs keep the failure kinds apart.
		if errors.Is(err, broker.ErrRejected) {
			s.logger.Error("broker rejected payment event",
				zap.String("orderId", req.OrderID), zap.Error(err))
		} else {
			s.logger.Error("failed to publish payment event",
				zap.String("orderId", req.OrderID), zap.Error(err))
		}
		s.respondError(w, http.StatusInternalServerError, "failed to publish payment event", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "payment event published",
		"data": map[string]any{
			"orderId":   req.OrderID,
			"amount":    amount,
			"eventId":   uuid.NewString(),
			"timestamp": now.Format(time.RFC3339),
		},
	})
}

// handlePaymentTest publishes a synthetic payment event, with any fields from
// the optional request body layered over the defaults.
func (s *Server) handlePaymentTest(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]any
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	now := time.Now().UTC()
	record := map[string]any{
		"eventType":     paymentCompletedEvent,
		"orderId":       fmt.Sprintf("TEST-%d", now.UnixMilli()),
		"amount":        100.0,
		"currency":      defaultCurrency,
		"status":        defaultPaymentStatus,
		"customer":      map[string]any{"name": "Test Customer", "email": "test@example.com"},
		"items":         []any{},
		"timestamp":     now.Format(time.RFC3339),
		"source":        "manual-test",
		"hubReceivedAt": now.Format(time.RFC3339),
		"processed":     false,
	}
	for k, v := range overrides {
		record[k] = v
	}

	if err := s.publisher.Publish(r.Context(), paymentCompletedEvent, record); err != nil {
		s.logger.Error("failed to publish test event", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to publish test event", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "test event published",
		"data":     record,
		"rabbitmq": "event_sent",
	})
}

// handlePaymentHealth is a static liveness probe; it never touches the broker.
func (s *Server) handlePaymentHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"service":   s.cfg.Observability.ServiceName,
		"status":    "operational",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func normalizePaymentEvent(req paymentWebhookRequest, amount float64, now time.Time) map[string]any {
	customer := req.Customer
	if customer == nil {
		customer = map[string]any{"name": "Guest", "email": ""}
	}
	items := req.Items
	if items == nil {
		items = []any{}
	}

	return map[string]any{
		"eventType":       req.EventType,
		"orderId":         req.OrderID,
		"amount":          amount,
		"paymentIntentId": req.PaymentIntentID,
		"currency":        valueOr(req.Currency, defaultCurrency),
		"status":          valueOr(req.Status, defaultPaymentStatus),
		"customer":        customer,
		"items":           items,
		"timestamp":       valueOr(req.Timestamp, now.Format(time.RFC3339)),
		"source":          valueOr(req.Source, "payment-gateway"),
		"hubReceivedAt":   now.Format(time.RFC3339),
		"processed":       false,
	}
}

// coerceAmount accepts JSON numbers and numeric strings; anything else, or a
// non-finite or non-positive value, is a client error.
func coerceAmount(v any) (float64, error) {
	var amount float64
	switch n := v.(type) {
	case float64:
		amount = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		amount = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		amount = parsed
	default:
		return 0, fmt.Errorf("unsupported amount type %T", v)
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, errors.New("amount is not finite")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount %v is not positive", amount)
	}
	return amount, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
