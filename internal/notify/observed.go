// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package notify

import (
	"context"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// EmailObserver records the result of each hand-off.
// *observability.Metrics satisfies it.
type EmailObserver interface {
	ObserveEmail(err error)
}

// Observed wraps next so every SendEmail result is reported to obs.
func Observed(next auth.Notifier, obs EmailObserver) auth.Notifier {
	if obs == nil {
		return next
	}
	return &observed{next: next, obs: obs}
}

type observed struct {
	next auth.Notifier
	obs  EmailObserver
}

func (o *observed) SendEmail(ctx context.Context, msg auth.Email) error {
	err := o.next.SendEmail(ctx, msg)
	o.obs.ObserveEmail(err)
	return err
}
