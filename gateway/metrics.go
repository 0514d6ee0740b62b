// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for document operations
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_gateway_operations_total",
			Help: "Document operations by connector role, operation and outcome",
		},
		[]string{"role", "operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nucleotic_gateway_operation_duration_milliseconds",
			Help:    "Document operation duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 3000},
		},
		[]string{"role", "operation"},
	)

	archiveRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_gateway_archive_records_total",
			Help: "Archive records written before a mutation",
		},
		[]string{"action"},
	)

	orphanArchiveRiskTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_gateway_orphan_archive_risk_total",
			Help: "Mutations that failed after their archive record was written",
		},
		[]string{"action"},
	)

	connectionsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nucleotic_gateway_connections_opened_total",
			Help: "Store handles opened per request context",
		},
		[]string{"role", "status"},
	)
)

// observe is deferred with a pointer to the named error result
func observe(role, operation string, start time.Time, errp *error) {
	status := "success"
	if errp != nil && *errp != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(role, operation, status).Inc()
	operationDuration.WithLabelValues(role, operation).Observe(float64(time.Since(start).Milliseconds()))
}
