// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue carrying outbound email.
const DefaultQueue = "email.outbound"

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of *amqp.Connection used here.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// DialAMQP dials RabbitMQ with amqp091-go.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	return c.Connection.Channel()
}

func declare(ch Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}
