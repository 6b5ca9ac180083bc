// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the CalmPulse Prometheus collectors. It satisfies
// auth.Recorder.
type Metrics struct {
	AuthEventsTotal     *prometheus.CounterVec
	RefreshReplaysTotal prometheus.Counter
	RefreshPurgedTotal  prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the CalmPulse metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calmpulse_auth_events_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RefreshReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calmpulse_refresh_replays_total",
			Help: "Total number of revoked refresh tokens presented again",
		}),
		RefreshPurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calmpulse_refresh_purged_total",
			Help: "Total number of expired refresh records deleted by the janitor",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calmpulse_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calmpulse_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.AuthEventsTotal,
		m.RefreshReplaysTotal,
		m.RefreshPurgedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// RecordAuthEvent counts one auth operation. outcome is "ok" or the
// failure kind.
func (m *Metrics) RecordAuthEvent(operation, outcome string) {
	m.AuthEventsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordReplay counts a replayed refresh token.
func (m *Metrics) RecordReplay() {
	m.RefreshReplaysTotal.Inc()
}

// RecordPurge adds n deleted refresh records.
func (m *Metrics) RecordPurge(n int64) {
	if n > 0 {
		m.RefreshPurgedTotal.Add(float64(n))
	}
}

// ObserveHTTP records one served request. route is the matched route
// pattern, never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
