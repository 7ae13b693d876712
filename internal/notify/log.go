// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// Log records deliveries without sending them. Bodies are never logged
// because they carry codes and reset links.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// SendEmail implements auth.Notifier.
func (l *Log) SendEmail(ctx context.Context, msg auth.Email) error {
	l.logger.InfoContext(ctx, "email delivered to log",
		"to", msg.To,
		"subject", msg.Subject,
		"text_bytes", len(msg.Text),
		"html", msg.HTML != "",
	)
	return nil
}
