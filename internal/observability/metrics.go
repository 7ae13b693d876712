// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application collectors.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	AuthOutcomes    *prometheus.CounterVec
	EmailDeliveries *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventdesk_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_auth_operations_total",
				Help: "Auth operations by name and outcome (ok or error kind)",
			},
			[]string{"operation", "outcome"},
		),
		EmailDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_email_deliveries_total",
				Help: "Email hand-offs by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.AuthOutcomes, m.EmailDeliveries)
	return m
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveAuth records the outcome of an auth operation.
func (m *Metrics) ObserveAuth(operation, outcome string) {
	m.AuthOutcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveEmail records an email hand-off.
func (m *Metrics) ObserveEmail(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EmailDeliveries.WithLabelValues(result).Inc()
}
