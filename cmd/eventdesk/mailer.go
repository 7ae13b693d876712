// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/config"
	"github.com/eventdesk/eventdesk/internal/notify"
)

// NewMailerCmd creates the mailer subcommand.
func NewMailerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mailer",
		Short: "Deliver queued email",
		Long: `Consume the outbound email queue filled by "serve" when mail.driver
is amqp, and deliver each message over SMTP (or to the log when no SMTP
host is configured).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, mailerConfig)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMailerWithDeps(ctx, cfg, logger, nil)
		},
	}
}

func mailerConfig(cfg *config.Config) error {
	if cfg.Mail.AMQP.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "mail.amqp.url").Errorf("amqp url is required")
	}
	return nil
}

// runMailerWithDeps consumes until ctx is cancelled.
func runMailerWithDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *MailerDeps) error {
	if deps == nil {
		deps = &MailerDeps{}
	}
	if deps.ConsumerFactory == nil {
		deps.ConsumerFactory = func(cc notify.ConsumerConfig, sink auth.Notifier, logger *slog.Logger) (Consumer, error) {
			return notify.NewConsumer(cc, notify.DialAMQP, sink, logger)
		}
	}

	sink, err := mailerSink(cfg, logger)
	if err != nil {
		return err
	}
	consumer, err := deps.ConsumerFactory(notify.ConsumerConfig{
		URL:   cfg.Mail.AMQP.URL,
		Queue: cfg.Mail.AMQP.Queue,
	}, sink, logger)
	if err != nil {
		return err
	}

	logger.Info("mailer started", "queue", cfg.Mail.AMQP.Queue, "smtp", cfg.Mail.SMTP.Host != "")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mailer stopped")
	return nil
}

// mailerSink is the notifier that finally delivers queued messages.
func mailerSink(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.Mail.SMTP.Host == "" {
		logger.Warn("no smtp host configured, queued email goes to the log")
		return notify.NewLog(logger), nil
	}
	return notify.NewSMTP(cfg.SMTP())
}
