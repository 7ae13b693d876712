// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package notify delivers auth emails.
//
// The API process hands messages to a Publisher, which queues them on
// RabbitMQ. The mailer process runs a Consumer that drains the queue into an
// SMTP or Log notifier. Small deployments can skip the queue and give the
// auth service an SMTP notifier directly.
package notify
