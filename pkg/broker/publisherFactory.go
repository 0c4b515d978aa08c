package broker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/config"
)

// NewPublisher builds the publisher stack described by the configuration:
// the broker backend, then the optional retry decorator, then the metrics
// decorator on the outside.
func NewPublisher(ctx context.Context, cfg *config.Settings, logger *zap.Logger) (EventPublisher, error) {
	var (
		pub EventPublisher
		err error
	)

	switch cfg.Broker.Type {
	case "rabbitmq":
		if cfg.Broker.PoolSize > 0 {
			pub, err = NewPooledRabbitMqPublisher(&cfg.Broker, &cfg.Publish, logger)
			if err != nil {
				// The pooled publisher dials eagerly; fall back to the
				// per-call publisher so the broker being down at startup is
				// never fatal.
				logger.Warn("pooled publisher unavailable, falling back to per-call connections",
					zap.Error(err))
				pub, err = NewRabbitMqPublisher(&cfg.Broker, &cfg.Publish, logger)
			}
		} else {
			pub, err = NewRabbitMqPublisher(&cfg.Broker, &cfg.Publish, logger)
		}
	case "gcp-pubsub":
		pub, err = NewPubSubPublisher(ctx, &cfg.Broker, &cfg.Publish, logger)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Broker.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Publish.MaxRetries > 0 {
		pub = WithRetry(pub, cfg.Publish.MaxRetries, cfg.Publish.RetryBackoff, logger)
	}

	return WithMetrics(pub), nil
}
