package broker

import (
	"context"
	"errors"
	"time"

	"github.com/zoff-tech/order-event-hub/pkg/telemetry"
)

// WithMetrics wraps a publisher with Prometheus instrumentation.
func WithMetrics(next EventPublisher) EventPublisher {
	return &metricsPublisher{next: next}
}

type metricsPublisher struct {
	next EventPublisher
}

func (m *metricsPublisher) Publish(ctx context.Context, destination string, payload map[string]any) error {
	start := time.Now()
	err := m.next.Publish(ctx, destination, payload)
	telemetry.PublishDuration.WithLabelValues(destination).Observe(time.Since(start).Seconds())
	telemetry.PublishTotal.WithLabelValues(destination, outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, ErrRejected):
		return telemetry.OutcomeRejected
	default:
		return telemetry.OutcomeConnectError
	}
}

func (m *metricsPublisher) Close() error {
	return m.next.Close()
}
