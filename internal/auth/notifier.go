// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import "context"

// Email is an outbound message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Notifier delivers email. A returned error means the message was not accepted.
type Notifier interface {
	SendEmail(ctx context.Context, msg Email) error
}
