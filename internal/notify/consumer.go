// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/pkg/errutil"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Consumer drains the email queue into a downstream notifier.
type Consumer struct {
	cfg    ConsumerConfig
	dial   Dialer
	sink   auth.Notifier
	logger *slog.Logger
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

// NewConsumer creates a Consumer that hands each message to sink.
func NewConsumer(cfg ConsumerConfig, dial Dialer, sink auth.Notifier, logger *slog.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, oops.Code("AMQP_CONFIG_INVALID").Errorf("amqp url is required")
	}
	if sink == nil {
		return nil, oops.Code("AMQP_CONFIG_INVALID").Errorf("sink notifier is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if dial == nil {
		dial = DialAMQP
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, dial: dial, sink: sink, logger: logger}, nil
}

// Run consumes until ctx is cancelled, reconnecting with capped exponential
// backoff whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := retry.WithCappedDuration(c.cfg.MaxBackoff, retry.NewExponential(c.cfg.MinBackoff))
	backoff = retry.WithJitterPercent(10, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.session(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		c.logger.WarnContext(ctx, "mailer session ended, reconnecting", "error", err)
		return retry.RetryableError(err)
	})
	if err != nil && ctx.Err() == nil {
		return oops.Code("AMQP_CONSUME_FAILED").With("queue", c.cfg.Queue).Wrap(err)
	}
	return nil
}

// session runs one connection lifetime. It returns nil only when ctx ends.
func (c *Consumer) session(ctx context.Context) error {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return oops.Code("AMQP_DIAL_FAILED").Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return oops.Code("AMQP_CHANNEL_FAILED").Wrap(err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return oops.Code("AMQP_CHANNEL_FAILED").With("operation", "qos").Wrap(err)
	}
	if err := declare(ch, c.cfg.Queue); err != nil {
		return oops.Code("AMQP_CHANNEL_FAILED").With("operation", "declare").Wrap(err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, "eventdesk-mailer", false, false, false, false, nil)
	if err != nil {
		return oops.Code("AMQP_CHANNEL_FAILED").With("operation", "consume").Wrap(err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.InfoContext(ctx, "mailer consuming", "queue", c.cfg.Queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return amqpErr
			}
			return errDeliveriesClosed
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

// handle delivers one message. Undecodable messages are dropped; send
// failures are requeued once.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg auth.Email
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.ErrorContext(ctx, "dropping undecodable email", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.sink.SendEmail(ctx, msg); err != nil {
		errutil.LogError(c.logger, "email delivery failed", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}
