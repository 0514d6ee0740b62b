// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Store is one open database handle on a document storage engine.
// Implementations are bound to a single database; collections are addressed by name.
type Store interface {
	// Lifecycle Management
	Close(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Read Operations
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	EstimatedCount(ctx context.Context, collection string) (int64, error)

	// Write Operations
	InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error)
	FindOneAndReplace(ctx context.Context, collection string, filter bson.M, replacement bson.M) (bson.M, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)

	// Metadata
	Name() string // Database name
	Type() string // Engine type (mongodb, memory)
}

// Dialer opens a Store for the database a descriptor points at.
type Dialer func(ctx context.Context, d Descriptor) (Store, error)

// FindOptions holds the optional parts of a find query
type FindOptions struct {
	Projection bson.M // Fields to include (1) or exclude (0)
	Skip       int64  // Documents to skip
	Limit      int64  // 0 means unbounded
	Sort       bson.D // Ordered sort keys, nil keeps store order
}

// HealthStatus represents the health of a store
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ConnectorError represents errors specific to store operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
