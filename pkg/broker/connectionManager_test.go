package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"

	"go.uber.org/zap"
)

func newTestManager() *ConnectionManager {
	brokerCfg, pubCfg := testSettings()
	return NewConnectionManager(brokerCfg, pubCfg, zap.NewNop())
}

func TestConnect_Success(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return conn, nil
	})

	conn.On("Channel").Return(ch, nil)
	ch.On("QueueDeclare", probeQueue, false, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueDelete", probeQueue, false, false, false).Return(0, nil)
	ch.On("Close").Return(nil)
	conn.On("Close").Return(nil)

	m := newTestManager()
	assert.True(t, m.Connect(context.Background()))
	ch.AssertExpectations(t)

	assert.NoError(t, m.Close())
	assert.True(t, conn.IsClosed())
}

func TestConnect_DialFailureIsNotFatal(t *testing.T) {
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return nil, errors.New("connection refused")
	})

	m := newTestManager()
	assert.False(t, m.Connect(context.Background()))
	assert.NoError(t, m.Close())
}

func TestConnect_SmokeTestFailure(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return conn, nil
	})

	conn.On("Channel").Return(ch, nil)
	conn.On("Close").Return(nil)
	ch.On("QueueDeclare", probeQueue, false, false, false, false, amqp.Table(nil)).Return(errors.New("access refused"))

	m := newTestManager()
	assert.False(t, m.Connect(context.Background()))
	conn.AssertExpectations(t)
}

func TestCheckHealth(t *testing.T) {
	conn := new(mockConnection)
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return conn, nil
	})
	conn.On("Close").Return(nil)

	m := newTestManager()
	assert.True(t, m.CheckHealth(context.Background()))
	assert.True(t, conn.IsClosed(), "health probe must close its connection immediately")
}

func TestCheckHealth_Unreachable(t *testing.T) {
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return nil, errors.New("connection refused")
	})

	m := newTestManager()
	assert.False(t, m.CheckHealth(context.Background()))
}

func TestCheckHealth_CanceledContext(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, m.CheckHealth(ctx))
}
