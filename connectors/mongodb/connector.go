// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

const (
	// DefaultTimeout is the default operation timeout
	DefaultTimeout = 30 * time.Second
	// DefaultServerSelectionTimeout bounds how long an unreachable server blocks a request
	DefaultServerSelectionTimeout = 3000 * time.Millisecond
	// DefaultConnectTimeout is the default connection timeout
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize is the default maximum connection pool size
	DefaultMaxPoolSize = 100
	// DefaultMinPoolSize is the default minimum connection pool size
	DefaultMinPoolSize = 0
)

// Connector is a base.Store bound to one MongoDB database.
// The underlying client belongs to a Pool and outlives the Connector.
type Connector struct {
	client    *mongo.Client
	database  *mongo.Database
	dbName    string
	opTimeout time.Duration
	logger    *log.Logger
}

func newConnector(client *mongo.Client, dbName string, opTimeout time.Duration, logger *log.Logger) *Connector {
	return &Connector{
		client:    client,
		database:  client.Database(dbName),
		dbName:    dbName,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Close releases the handle. The pooled client stays connected for other requests.
func (c *Connector) Close(ctx context.Context) error {
	c.database = nil
	return nil
}

// HealthCheck verifies the MongoDB connection is healthy
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.database == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "handle closed",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	err := c.client.Ping(ctx, readpref.Primary())
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	details := map[string]string{
		"database": c.dbName,
	}

	var buildInfo bson.M
	if err := c.database.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&buildInfo); err == nil {
		if version, ok := buildInfo["version"].(string); ok {
			details["mongodb_version"] = version
		}
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// Find runs a query and materializes every matching document
func (c *Connector) Find(ctx context.Context, collection string, filter bson.M, opts base.FindOptions) ([]bson.M, error) {
	if c.database == nil {
		return nil, base.NewConnectorError(c.Name(), "Find", "handle closed", nil)
	}
	queryCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find()
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}

	cursor, err := c.database.Collection(collection).Find(queryCtx, orEmpty(filter), findOpts)
	if err != nil {
		return nil, c.wrap("Find", fmt.Sprintf("find on %s failed", collection), err)
	}
	defer func() { _ = cursor.Close(queryCtx) }()

	docs, err := decodeCursor(queryCtx, cursor)
	if err != nil {
		return nil, c.wrap("Find", fmt.Sprintf("decoding %s results failed", collection), err)
	}
	return docs, nil
}

// EstimatedCount returns the collection metadata count, without scanning
func (c *Connector) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	if c.database == nil {
		return 0, base.NewConnectorError(c.Name(), "EstimatedCount", "handle closed", nil)
	}
	queryCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.database.Collection(collection).EstimatedDocumentCount(queryCtx)
	if err != nil {
		return 0, c.wrap("EstimatedCount", fmt.Sprintf("count on %s failed", collection), err)
	}
	return n, nil
}

// InsertOne inserts a single document and returns its identity
func (c *Connector) InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error) {
	if c.database == nil {
		return nil, base.NewConnectorError(c.Name(), "InsertOne", "handle closed", nil)
	}
	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.database.Collection(collection).InsertOne(execCtx, doc)
	if err != nil {
		return nil, c.wrap("InsertOne", fmt.Sprintf("insert into %s failed", collection), err)
	}
	return result.InsertedID, nil
}

// FindOneAndReplace replaces the first document matching filter and returns the new version
func (c *Connector) FindOneAndReplace(ctx context.Context, collection string, filter bson.M, replacement bson.M) (bson.M, error) {
	if c.database == nil {
		return nil, base.NewConnectorError(c.Name(), "FindOneAndReplace", "handle closed", nil)
	}
	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := options.FindOneAndReplace().SetReturnDocument(options.After)

	var updated bson.M
	err := c.database.Collection(collection).FindOneAndReplace(execCtx, orEmpty(filter), replacement, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, base.NewConnectorError(c.Name(), "FindOneAndReplace",
			fmt.Sprintf("no document in %s matches filter", collection), base.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, c.wrap("FindOneAndReplace", fmt.Sprintf("replace in %s failed", collection), err)
	}
	return updated, nil
}

// DeleteOne deletes at most one document matching filter
func (c *Connector) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if c.database == nil {
		return 0, base.NewConnectorError(c.Name(), "DeleteOne", "handle closed", nil)
	}
	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.database.Collection(collection).DeleteOne(execCtx, orEmpty(filter))
	if err != nil {
		return 0, c.wrap("DeleteOne", fmt.Sprintf("delete in %s failed", collection), err)
	}
	return result.DeletedCount, nil
}

// Name returns the database name
func (c *Connector) Name() string {
	return c.dbName
}

// Type returns the engine type
func (c *Connector) Type() string {
	return "mongodb"
}

func (c *Connector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// wrap converts driver errors into the shared taxonomy
func (c *Connector) wrap(operation, message string, err error) error {
	if isUnreachable(err) {
		return base.NewConnectorError(c.Name(), operation, message, fmt.Errorf("%w: %v", base.ErrConnectionTimeout, err))
	}
	return base.NewConnectorError(c.Name(), operation, message, err)
}

func isUnreachable(err error) bool {
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

// decodeCursor decodes all documents from a cursor
func decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]bson.M, error) {
	results := []bson.M{}

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
