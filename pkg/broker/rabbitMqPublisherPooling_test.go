package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func newTestPooledPublisher(poolSize int, conn *mockConnection, ch *mockChannel) *pooledRabbitMqPublisher {
	brokerCfg, pubCfg := testSettings()
	brokerCfg.PoolSize = poolSize
	p := &pooledRabbitMqPublisher{
		connection:      conn,
		channelPool:     make(chan *pooledChannel, poolSize),
		settings:        brokerCfg,
		publish:         pubCfg,
		logger:          zap.NewNop(),
		reconnectTicker: time.NewTicker(time.Hour), // never fires
		stopReconnect:   make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		p.channelPool <- &pooledChannel{
			channel:     ch,
			notifyClose: make(chan *amqp.Error, 1),
		}
	}
	return p
}

func TestPooledPublish_Success(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)

	ch.On("QueueDeclare", "payment.completed", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("Publish", "", "payment.completed", false, false, mock.Anything).Return(nil)

	err := p.Publish(context.Background(), "payment.completed", map[string]any{"orderId": "ORD-1"})
	assert.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestPooledPublish_QueueDeclareError(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)

	ch.On("QueueDeclare", "payment.completed", true, false, false, false, amqp.Table(nil)).Return(errors.New("declare"))

	err := p.Publish(context.Background(), "payment.completed", map[string]any{"orderId": "ORD-1"})
	assert.ErrorIs(t, err, ErrConnect)
}

func TestPooledPublish_SendRejected(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)

	ch.On("QueueDeclare", "payment.completed", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("Publish", "", "payment.completed", false, false, mock.Anything).Return(errors.New("pub"))

	err := p.Publish(context.Background(), "payment.completed", map[string]any{"orderId": "ORD-1"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPooledPublish_GetChannelError(t *testing.T) {
	conn := new(mockConnection)
	p := newTestPooledPublisher(0, conn, nil)
	conn.On("Channel").Return(nil, errors.New("chanfail"))

	err := p.Publish(context.Background(), "payment.completed", map[string]any{"orderId": "ORD-1"})
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorContains(t, err, "chanfail")
}

func TestReleaseChannel_Closed(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)
	pooled := &pooledChannel{
		channel:     ch,
		notifyClose: make(chan *amqp.Error, 1),
	}
	pooled.notifyClose <- amqp.ErrClosed
	p.releaseChannel(pooled)
	// Should discard, not panic
}

func TestReleaseChannel_PoolFull(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)
	pooled := &pooledChannel{
		channel:     ch,
		notifyClose: make(chan *amqp.Error, 1),
	}
	ch.On("Close").Return(nil)
	// The pool is already full from newTestPooledPublisher
	p.releaseChannel(pooled)
	ch.AssertExpectations(t)
}

func TestPooledClose(t *testing.T) {
	conn := new(mockConnection)
	ch := new(mockChannel)
	p := newTestPooledPublisher(1, conn, ch)
	ch.On("Close").Return(nil)
	conn.On("Close").Return(nil)

	err := p.Close()
	assert.NoError(t, err)
	ch.AssertExpectations(t)
	conn.AssertExpectations(t)
}

func TestPooledPublish_SurvivesConcurrentReconnects(t *testing.T) {
	ch := new(mockChannel)
	ch.On("QueueDeclare", mock.Anything, true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("Publish", "", mock.Anything, false, false, mock.Anything).Return(nil)
	ch.On("Close").Return(nil)

	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		conn := new(mockConnection)
		conn.On("Channel").Return(ch, nil)
		conn.On("Close").Return(nil)
		return conn, nil
	})

	brokerCfg, pubCfg := testSettings()
	brokerCfg.PoolSize = 2
	pub, err := NewPooledRabbitMqPublisher(brokerCfg, pubCfg, zap.NewNop())
	require.NoError(t, err)
	p := pub.(*pooledRabbitMqPublisher)

	publishOnce := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("publish panicked: %v", r)
			}
		}()
		return p.Publish(context.Background(), "payment.completed", map[string]any{"n": 1})
	}

	stop := make(chan struct{})
	panicked := make(chan error, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := publishOnce(); err != nil && strings.Contains(err.Error(), "panicked") {
					panicked <- err
					return
				}
			}
		}()
	}

	// Swap the pool out repeatedly underneath the in-flight publishes.
	for i := 0; i < 50; i++ {
		require.NoError(t, p.connectAndInitialize())
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-panicked:
		t.Fatal(err)
	default:
	}

	assert.NoError(t, p.Close())
	// Close is idempotent; a second call must not tear down twice.
	assert.NoError(t, p.Close())
}

func TestGetChannel_DiscardsBrokerClosedChannel(t *testing.T) {
	conn := new(mockConnection)
	stale := new(mockChannel)
	fresh := new(mockChannel)
	p := newTestPooledPublisher(0, conn, nil)

	p.channelPool = make(chan *pooledChannel, 1)
	closedNotify := make(chan *amqp.Error, 1)
	closedNotify <- amqp.ErrClosed
	p.channelPool <- &pooledChannel{channel: stale, notifyClose: closedNotify}
	conn.On("Channel").Return(fresh, nil)

	got, err := p.getChannel()
	require.NoError(t, err)
	assert.Same(t, fresh, got.channel)
	assert.True(t, fresh.notifyRegistered.Load(),
		"replacement channel must register broker close notifications")
}

func TestConnectAndInitialize_RegistersCloseNotifications(t *testing.T) {
	ch := new(mockChannel)
	conn := new(mockConnection)
	conn.On("Channel").Return(ch, nil)
	conn.On("Close").Return(nil)
	ch.On("Close").Return(nil)
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return conn, nil
	})

	brokerCfg, pubCfg := testSettings()
	brokerCfg.PoolSize = 1
	pub, err := NewPooledRabbitMqPublisher(brokerCfg, pubCfg, zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	assert.True(t, ch.notifyRegistered.Load(),
		"pooled channels must register broker close notifications")
	p := pub.(*pooledRabbitMqPublisher)
	pooled := <-p.channelPool
	assert.NotNil(t, pooled.notifyClose)
}

func TestRecoverConnection_Stop(t *testing.T) {
	conn := new(mockConnection)
	p := newTestPooledPublisher(1, conn, new(mockChannel))
	p.reconnectTicker = time.NewTicker(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.recoverConnection()
		close(done)
	}()
	close(p.stopReconnect)
	<-done
}

func TestNewPooledRabbitMqPublisher_InvalidPoolSize(t *testing.T) {
	brokerCfg, pubCfg := testSettings()
	brokerCfg.PoolSize = 0
	pub, err := NewPooledRabbitMqPublisher(brokerCfg, pubCfg, zap.NewNop())
	assert.Nil(t, pub)
	assert.EqualError(t, err, "poolSize must be greater than 0")
}

func TestNewPooledRabbitMqPublisher_DialError(t *testing.T) {
	withDialer(t, func(url string, timeout time.Duration) (amqpConnection, error) {
		return nil, errors.New("connection refused")
	})

	brokerCfg, pubCfg := testSettings()
	brokerCfg.PoolSize = 2
	pub, err := NewPooledRabbitMqPublisher(brokerCfg, pubCfg, zap.NewNop())
	assert.Nil(t, pub)
	assert.ErrorContains(t, err, "failed to connect to RabbitMQ")
}
