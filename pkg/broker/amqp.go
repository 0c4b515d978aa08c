package broker

import (
	"time"

	"github.com/streadway/amqp"
)

// amqpChannel is the slice of *amqp.Channel the publishers use. Narrowing to
// an interface lets tests substitute a recording fake for the real channel.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
	IsClosed() bool
}

type amqpConnectionAdapter struct {
	*amqp.Connection
}

func (a amqpConnectionAdapter) Channel() (amqpChannel, error) {
	ch, err := a.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// dialAMQP opens a connection with a bounded dial timeout. Package-level var
// so tests can swap in a mock dialer.
var dialAMQP = func(url string, timeout time.Duration) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(timeout),
		Locale:    "en_US",
	})
	if err != nil {
		return nil, err
	}
	return amqpConnectionAdapter{conn}, nil
}
