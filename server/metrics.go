// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"route", "method", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nucleotic_http_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 3000},
		},
		[]string{"route"},
	)
	promLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)
	promSessionsRevoked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nucleotic_sessions_revoked_total",
			Help: "Sessions revoked by logout",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promLogins)
	prometheus.MustRegister(promSessionsRevoked)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
