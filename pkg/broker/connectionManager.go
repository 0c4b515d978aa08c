package broker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/config"
)

// probeQueue is asserted and immediately deleted during the startup smoke
// test to prove the channel accepts operations.
const probeQueue = "event-hub.startup-probe"

// ConnectionManager owns the lifecycle of the hub's long-lived broker
// connection. It exists for startup validation and out-of-band health
// reporting; publishers open their own connections, so a manager failure only
// degrades health reporting, never publishing.
type ConnectionManager struct {
	settings *config.BrokerSettings
	publish  *config.PublishSettings
	logger   *zap.Logger

	mu   sync.Mutex
	conn amqpConnection
}

func NewConnectionManager(settings *config.BrokerSettings, publish *config.PublishSettings, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		settings: settings,
		publish:  publish,
		logger:   logger,
	}
}

// Connect opens a connection and a channel, smoke-tests the channel by
// asserting and deleting a throwaway queue, and keeps the connection for
// later teardown. Failure is reported purely through the boolean result; it
// is never fatal to the hosting process.
func (m *ConnectionManager) Connect(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		m.logger.Error("broker connect aborted", zap.Error(err))
		return false
	}

	conn, err := dialAMQP(m.settings.URL, m.publish.ConnectTimeout)
	if err != nil {
		m.logger.Error("failed to connect to RabbitMQ", zap.Error(err))
		return false
	}

	ch, err := conn.Channel()
	if err != nil {
		m.logger.Error("failed to open channel", zap.Error(err))
		conn.Close()
		return false
	}

	if _, err := ch.QueueDeclare(probeQueue, false, false, false, false, nil); err != nil {
		m.logger.Error("channel smoke test failed", zap.Error(err))
		conn.Close()
		return false
	}
	if _, err := ch.QueueDelete(probeQueue, false, false, false); err != nil {
		m.logger.Error("failed to remove probe queue", zap.Error(err))
		conn.Close()
		return false
	}
	if err := ch.Close(); err != nil {
		m.logger.Debug("probe channel close failed", zap.Error(err))
	}

	m.mu.Lock()
	if m.conn != nil && !m.conn.IsClosed() {
		m.conn.Close()
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.Info("connected to RabbitMQ", zap.String("url", m.settings.URL))
	return true
}

// CheckHealth opens a short-lived connection solely to verify reachability and
// closes it immediately. It never touches the long-lived connection held by
// Connect, so health probes cannot interfere with it.
func (m *ConnectionManager) CheckHealth(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		return false
	}

	conn, err := dialAMQP(m.settings.URL, m.publish.ConnectTimeout)
	if err != nil {
		m.logger.Warn("broker health check failed", zap.Error(err))
		return false
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug("health check connection close failed", zap.Error(err))
	}
	return true
}

// Close tears down the long-lived connection on process shutdown.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
