// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// Publisher queues email on RabbitMQ. It implements auth.Notifier: a nil
// error means the broker accepted the message, not that it was delivered.
type Publisher struct {
	url   string
	queue string
	dial  Dialer

	mu   sync.Mutex
	conn Connection
	ch   Channel
}

// NewPublisher creates a Publisher. The connection is opened lazily and
// reopened after failures.
func NewPublisher(url, queue string, dial Dialer) (*Publisher, error) {
	if url == "" {
		return nil, oops.Code("AMQP_CONFIG_INVALID").Errorf("amqp url is required")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if dial == nil {
		dial = DialAMQP
	}
	return &Publisher{url: url, queue: queue, dial: dial}, nil
}

// SendEmail implements auth.Notifier.
func (p *Publisher) SendEmail(ctx context.Context, msg auth.Email) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").With("operation", "encode email").Wrap(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").
			With("operation", "open channel").
			With("queue", p.queue).
			Wrap(err)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return oops.Code("AMQP_PUBLISH_FAILED").
			With("operation", "publish").
			With("queue", p.queue).
			Wrap(err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	_ = p.ch.Close()
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	if err != nil {
		return oops.Code("AMQP_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// channel returns the open channel, dialing if needed. Caller holds p.mu.
func (p *Publisher) channel() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declare(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection so the next send redials. Caller holds p.mu.
func (p *Publisher) reset() {
	if p.conn == nil {
		return
	}
	_ = p.ch.Close()
	_ = p.conn.Close()
	p.conn, p.ch = nil, nil
}

var _ auth.Notifier = (*Publisher)(nil)
