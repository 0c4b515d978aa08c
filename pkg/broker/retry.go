package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// WithRetry wraps a publisher with bounded retries and doubling backoff.
// Only connectivity failures are retried: a rejected send means the broker
// client looked at the message and said no, and resending the same message
// will not change its mind. Disabled by default (publish.max_retries 0) to
// preserve the no-retry contract of the base publisher.
func WithRetry(next EventPublisher, maxRetries int, backoff time.Duration, logger *zap.Logger) EventPublisher {
	return &retryingPublisher{
		next:       next,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}
}

type retryingPublisher struct {
	next       EventPublisher
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

func (r *retryingPublisher) Publish(ctx context.Context, destination string, payload map[string]any) error {
	var err error
	backoff := r.backoff

	for attempt := 0; ; attempt++ {
		err = r.next.Publish(ctx, destination, payload)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConnect) || attempt >= r.maxRetries {
			return err
		}

		r.logger.Warn("publish failed, retrying",
			zap.String("destination", destination),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (r *retryingPublisher) Close() error {
	return r.next.Close()
}
