package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/config"
	"github.com/zoff-tech/order-event-hub/pkg/event"
)

type RabbitMQPublisherCreator func(settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger) (EventPublisher, error)

// NewRabbitMqPublisher creates the per-call publisher: every Publish dials a
// fresh connection and channel, so concurrent publishes share no channel state
// and a failed publish cannot corrupt anyone else's connection. The churn is a
// deliberate latency-for-isolation trade; NewPooledRabbitMqPublisher is the
// long-lived alternative.
var NewRabbitMqPublisher RabbitMQPublisherCreator = func(settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger) (EventPublisher, error) {
	return &rabbitMqPublisher{
		settings: settings,
		publish:  publish,
		logger:   logger,
	}, nil
}

type rabbitMqPublisher struct {
	settings *config.BrokerSettings
	publish  *config.PublishSettings
	logger   *zap.Logger
}

func (r *rabbitMqPublisher) Publish(ctx context.Context, destination string, payload map[string]any) error {
	tracer := otel.Tracer("order-event-hub")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String("queue"),
			semconv.MessagingDestinationKey.String(destination),
		),
	)
	defer span.End()

	if r.publish.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.publish.Timeout)
		defer cancel()
	}

	env := event.New(destination, r.publish.Source, payload, time.Now().UTC())
	body, err := env.Marshal()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: marshal envelope for %s: %v", ErrRejected, destination, err)
	}

	conn, ch, err := r.open(ctx)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("failed to open broker connection",
			zap.String("destination", destination), zap.Error(err))
		return err
	}

	// Inject the trace context into the message headers
	propagator := otel.GetTextMapPropagator()
	traceHeaders := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(traceHeaders))

	headers := make(amqp.Table, len(traceHeaders))
	for k, v := range traceHeaders {
		headers[k] = v
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID,
		Timestamp:    env.PublishedAt,
		Headers:      headers,
		Body:         body,
	}

	// The amqp client does not observe contexts, so the declare+enqueue runs
	// in its own goroutine raced against the deadline. On expiry the
	// connection is closed underneath it, which aborts the in-flight call.
	sendErr := make(chan error, 1)
	go func() {
		// Queue declaration is idempotent as long as the durability flags match.
		if _, err := ch.QueueDeclare(destination, true, false, false, false, nil); err != nil {
			sendErr <- fmt.Errorf("%w: declare queue %s: %v", ErrConnect, destination, err)
			return
		}
		if err := ch.Publish("", destination, false, false, msg); err != nil {
			sendErr <- fmt.Errorf("%w: enqueue to %s: %v", ErrRejected, destination, err)
			return
		}
		sendErr <- nil
	}()

	select {
	case err := <-sendErr:
		if err != nil {
			span.RecordError(err)
			closeQuietly(conn, ch, r.logger)
			return err
		}
	case <-ctx.Done():
		err := fmt.Errorf("%w: publish to %s: %v", ErrConnect, destination, ctx.Err())
		span.RecordError(err)
		closeQuietly(conn, ch, r.logger)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(body)),
	)

	// Close shortly after returning so in-flight frames get flushed without
	// blocking the caller. Close errors are swallowed.
	r.scheduleClose(conn, ch)

	return nil
}

// open dials a dedicated connection and channel for a single publish.
func (r *rabbitMqPublisher) open(ctx context.Context) (amqpConnection, amqpChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	conn, err := dialAMQP(r.settings.URL, r.publish.ConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial: %v", ErrConnect, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			r.logger.Debug("close connection after channel failure", zap.Error(cerr))
		}
		return nil, nil, fmt.Errorf("%w: open channel: %v", ErrConnect, err)
	}

	return conn, ch, nil
}

func (r *rabbitMqPublisher) scheduleClose(conn amqpConnection, ch amqpChannel) {
	time.AfterFunc(r.publish.CloseDelay, func() {
		closeQuietly(conn, ch, r.logger)
	})
}

func closeQuietly(conn amqpConnection, ch amqpChannel, logger *zap.Logger) {
	if err := ch.Close(); err != nil {
		logger.Debug("channel close failed", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		logger.Debug("connection close failed", zap.Error(err))
	}
}

// Close is a no-op: the per-call publisher holds no long-lived resources.
func (r *rabbitMqPublisher) Close() error {
	return nil
}
