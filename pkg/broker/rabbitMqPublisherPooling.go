package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

type pooledChannel struct {
	channel     amqpChannel
	notifyClose chan *amqp.Error
}

func newPooledChannel(conn amqpConnection) (*pooledChannel, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &pooledChannel{
		channel:     channel,
		notifyClose: channel.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// NewPooledRabbitMqPublisher creates the long-lived variant: one connection, a
// pool of channels, and background connection recovery. Selected through
// broker.pool_size > 0; the adapters only see the EventPublisher interface, so
// swapping it for the per-call publisher needs no adapter changes.
var NewPooledRabbitMqPublisher RabbitMQPublisherCreator = func(settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger) (EventPublisher, error) {
	if settings.PoolSize <= 0 {
		return nil, errors.New("poolSize must be greater than 0")
	}

	p := &pooledRabbitMqPublisher{
		channelPool:     make(chan *pooledChannel, settings.PoolSize),
		settings:        settings,
		publish:         publish,
		logger:          logger,
		reconnectTicker: time.NewTicker(5 * time.Second), // Retry every 5 seconds
		stopReconnect:   make(chan struct{}),
	}

	if err := p.connectAndInitialize(); err != nil {
		return nil, err
	}

	// Recover the connection in a separate goroutine
	go p.recoverConnection()

	return p, nil
}

type pooledRabbitMqPublisher struct {
	settings        *config.BrokerSettings
	publish         *config.PublishSettings
	logger          *zap.Logger
	reconnectTicker *time.Ticker
	stopReconnect   chan struct{}

	// mu guards connection, channelPool and closed. Publishes snapshot the
	// pool under the mutex and never hold it across broker I/O, so a
	// reconnect can swap the pool out while publishes are in flight.
	mu          sync.Mutex
	connection  amqpConnection
	channelPool chan *pooledChannel
	closed      bool
}

func (p *pooledRabbitMqPublisher) Publish(ctx context.Context, destination string, payload map[string]any) error {
	tracer := otel.Tracer("order-event-hub")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String("queue"),
			semconv.MessagingDestinationKey.String(destination),
		),
	)
	defer span.End()

	env := event.New(destination, p.publish.Source, payload, time.Now().UTC())
	body, err := env.Marshal()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: marshal envelope for %s: %v", ErrRejected, destination, err)
	}

	// Inject the trace context into the message headers
	propagator := otel.GetTextMapPropagator()
	traceHeaders := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(traceHeaders))

	headers := make(amqp.Table, len(traceHeaders))
	for k, v := range traceHeaders {
		headers[k] = v
	}

	pooledChan, err := p.getChannel()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: acquire channel: %v", ErrConnect, err)
	}
	defer p.releaseChannel(pooledChan)

	if _, err := pooledChan.channel.QueueDeclare(destination, true, false, false, false, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: declare queue %s: %v", ErrConnect, destination, err)
	}

	err = pooledChan.channel.Publish(
		"", destination, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Timestamp:    env.PublishedAt,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: enqueue to %s: %v", ErrRejected, destination, err)
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(body)),
	)

	return nil
}

func (p *pooledRabbitMqPublisher) connectAndInitialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("publisher is closed")
	}

	// Close existing connection if it exists
	if p.connection != nil && !p.connection.IsClosed() {
		p.connection.Close()
	}

	connection, err := dialAMQP(p.settings.URL, p.publish.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	p.connection = connection

	// Swap in a fresh pool. The old one is drained, never closed: a Publish
	// that snapshotted it may still be receiving, and a receive from a
	// closed chan would hand out nil.
	drainPool(p.channelPool)
	pool := make(chan *pooledChannel, p.settings.PoolSize)
	for i := 0; i < p.settings.PoolSize; i++ {
		pooledChan, err := newPooledChannel(connection)
		if err != nil {
			return err
		}
		pool <- pooledChan
	}
	p.channelPool = pool

	p.logger.Info("RabbitMQ connection and channel pool initialized",
		zap.Int("pool_size", p.settings.PoolSize))
	return nil
}

// drainPool empties the pool and closes the drained channels, leaving the
// chan itself open for any publish that still holds a reference to it.
func drainPool(pool chan *pooledChannel) {
	for {
		select {
		case pooledChan := <-pool:
			pooledChan.channel.Close()
		default:
			return
		}
	}
}

func (p *pooledRabbitMqPublisher) connectionDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && (p.connection == nil || p.connection.IsClosed())
}

func (p *pooledRabbitMqPublisher) recoverConnection() {
	for {
		select {
		case <-p.reconnectTicker.C:
			if p.connectionDown() {
				p.logger.Warn("Attempting to reconnect to RabbitMQ...")
				if err := p.connectAndInitialize(); err != nil {
					p.logger.Error("Failed to reconnect to RabbitMQ", zap.Error(err))
				} else {
					p.logger.Info("Reconnected to RabbitMQ successfully")
				}
			}
		case <-p.stopReconnect:
			p.logger.Info("Stopping RabbitMQ connection recovery")
			return
		}
	}
}

func (p *pooledRabbitMqPublisher) getChannel() (*pooledChannel, error) {
	p.mu.Lock()
	pool := p.channelPool
	conn := p.connection
	p.mu.Unlock()

	if conn == nil {
		return nil, errors.New("connection is not initialized")
	}

	for {
		select {
		case pooledChan, ok := <-pool:
			if !ok || pooledChan == nil {
				// Stale pool generation; open a fresh channel instead.
				return newPooledChannel(conn)
			}
			select {
			case err := <-pooledChan.notifyClose:
				// Channel was closed by the broker, discard it
				p.logger.Debug("Discarding closed channel", zap.Error(err))
				continue
			default:
				return pooledChan, nil
			}
		default:
			// Create a new channel if none are available
			return newPooledChannel(conn)
		}
	}
}

func (p *pooledRabbitMqPublisher) releaseChannel(pooledChan *pooledChannel) {
	select {
	case err := <-pooledChan.notifyClose:
		// Channel was closed by the broker, discard it
		p.logger.Debug("Discarding closed channel", zap.Error(err))
		return
	default:
	}

	p.mu.Lock()
	pool := p.channelPool
	p.mu.Unlock()

	select {
	case pool <- pooledChan:
	default:
		// Pool is full, close the channel
		pooledChan.channel.Close()
	}
}

func (p *pooledRabbitMqPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	// Stop the connection recovery goroutine
	close(p.stopReconnect)
	p.reconnectTicker.Stop()

	// Drain rather than close the pool; see connectAndInitialize.
	drainPool(p.channelPool)

	// Close the connection
	if p.connection != nil {
		return p.connection.Close()
	}
	return nil
}
