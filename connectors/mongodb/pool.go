// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mongodb

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// PoolOptions holds options for creating a Pool.
type PoolOptions struct {
	ServerSelectionTimeout time.Duration
	ConnectTimeout         time.Duration
	OperationTimeout       time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
	AppName                string
	Logger                 *log.Logger
}

// Pool keeps one driver client per connection string for the whole process.
// Request contexts take cheap database handles from it; the driver's own
// connection pool inside each client is reused across requests and tenants.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*mongo.Client
	opts    PoolOptions
	logger  *log.Logger
}

// NewPool creates a Pool, filling unset options with the package defaults.
func NewPool(opts PoolOptions) *Pool {
	if opts.ServerSelectionTimeout <= 0 {
		opts.ServerSelectionTimeout = DefaultServerSelectionTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.OperationTimeout < 0 {
		opts.OperationTimeout = 0
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = DefaultMaxPoolSize
	}
	if opts.AppName == "" {
		opts.AppName = "nucleotic-gateway"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[MONGODB] ", log.LstdFlags)
	}

	return &Pool{
		clients: make(map[string]*mongo.Client),
		opts:    opts,
		logger:  logger,
	}
}

// Dial returns a handle on the database named by the descriptor, connecting the
// underlying client on first use of its connection string. It has the
// base.Dialer signature so it can be passed as pool.Dial.
func (p *Pool) Dial(ctx context.Context, d base.Descriptor) (base.Store, error) {
	uri, err := base.BuildConnectionString(d)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	client, exists := p.clients[uri]
	p.mu.Unlock()
	if exists {
		return newConnector(client, d.DBName, p.opts.OperationTimeout, p.logger), nil
	}

	client, err = p.connect(ctx, uri, d)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, raced := p.clients[uri]; raced {
		p.mu.Unlock()
		// Another request connected the same server first; keep theirs.
		_ = client.Disconnect(ctx)
		return newConnector(existing, d.DBName, p.opts.OperationTimeout, p.logger), nil
	}
	p.clients[uri] = client
	p.mu.Unlock()

	return newConnector(client, d.DBName, p.opts.OperationTimeout, p.logger), nil
}

func (p *Pool) connect(ctx context.Context, uri string, d base.Descriptor) (*mongo.Client, error) {
	clientOpts := p.clientOptions(uri)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, base.NewConnectorError(d.DBName, "Connect", "failed to configure client", err)
	}

	// Connect is lazy; the ping surfaces an unreachable server within the selection window.
	pingCtx, cancel := context.WithTimeout(ctx, p.opts.ServerSelectionTimeout+time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		if isUnreachable(err) {
			return nil, base.NewConnectorError(d.DBName, "Connect",
				fmt.Sprintf("%s unreachable", d.Redacted()), fmt.Errorf("%w: %v", base.ErrConnectionTimeout, err))
		}
		return nil, base.NewConnectorError(d.DBName, "Connect", "failed to ping MongoDB", err)
	}

	p.logger.Printf("Connected to MongoDB: %s (max_pool=%d)", d.Redacted(), p.opts.MaxPoolSize)
	return client, nil
}

// clientOptions builds the driver options for one connection string
func (p *Pool) clientOptions(uri string) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetServerSelectionTimeout(p.opts.ServerSelectionTimeout)
	clientOpts.SetConnectTimeout(p.opts.ConnectTimeout)
	clientOpts.SetMaxPoolSize(p.opts.MaxPoolSize)
	clientOpts.SetMinPoolSize(p.opts.MinPoolSize)
	clientOpts.SetAppName(p.opts.AppName)

	// Retries belong to the caller's policy, not to this layer.
	clientOpts.SetRetryWrites(false)
	clientOpts.SetRetryReads(false)

	// Nested documents decode as bson.M so documents can be edited and re-saved as maps.
	clientOpts.SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	return clientOpts
}

// Size returns the number of connected clients
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// DisconnectAll closes every pooled client. Called once at process shutdown.
func (p *Pool) DisconnectAll(ctx context.Context) error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*mongo.Client)
	p.mu.Unlock()

	var firstErr error
	for uri, client := range clients {
		disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.Disconnect(disconnectCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to disconnect %s: %w", redactURI(uri), err)
		}
		cancel()
	}
	if firstErr == nil {
		p.logger.Printf("Disconnected %d MongoDB client(s)", len(clients))
	}
	return firstErr
}

// redactURI drops the user info part of a connection string for logging
func redactURI(uri string) string {
	opts := options.Client().ApplyURI(uri)
	if len(opts.Hosts) == 0 {
		return "mongodb://***"
	}
	return fmt.Sprintf("mongodb://%s", opts.Hosts[0])
}
