package broker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/config"
	"github.com/zoff-tech/order-event-hub/pkg/event"
)

// PubSubPublisherCreator defines a function type for creating Pub/Sub publishers.
type PubSubPublisherCreator func(ctx context.Context, settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger, opts ...option.ClientOption) (EventPublisher, error)

// NewPubSubPublisher is the default implementation of PubSubPublisherCreator.
// It carries the same envelope contract as the RabbitMQ publishers, so a
// deployment without RabbitMQ can run the hub against GCP Pub/Sub unchanged.
var NewPubSubPublisher PubSubPublisherCreator = func(ctx context.Context, settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger, opts ...option.ClientOption) (EventPublisher, error) {
	client, err := pubsub.NewClient(ctx, settings.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubPublisher{client: client, publish: publish, logger: logger}, nil
}

type pubSubPublisher struct {
	client  *pubsub.Client
	publish *config.PublishSettings
	logger  *zap.Logger
}

func (p *pubSubPublisher) Publish(ctx context.Context, destination string, payload map[string]any) error {
	tracer := otel.Tracer("order-event-hub")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(destination),
		),
	)
	defer span.End()

	if p.publish.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publish.Timeout)
		defer cancel()
	}

	env := event.New(destination, p.publish.Source, payload, time.Now().UTC())
	body, err := env.Marshal()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: marshal envelope for %s: %v", ErrRejected, destination, err)
	}

	// Inject the trace context into the message attributes
	propagator := otel.GetTextMapPropagator()
	attributes := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(attributes))

	message := &pubsub.Message{
		Data:       body,
		Attributes: attributes,
	}

	res := p.client.Topic(destination).Publish(ctx, message)
	if _, err := res.Get(ctx); err != nil { // wait for server ack
		span.RecordError(err)
		return fmt.Errorf("%w: publish to %s: %v", ErrConnect, destination, err)
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(body)),
	)

	return nil
}

func (p *pubSubPublisher) Close() error {
	return p.client.Close()
}
