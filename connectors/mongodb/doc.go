// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package mongodb implements base.Store on top of the official MongoDB Go driver.
//
// A Pool holds one *mongo.Client per connection string for the process lifetime.
// Pool.Dial returns a Connector bound to one database; it is cheap and meant to be
// cached in a request context and closed at request end:
//
//	pool := mongodb.NewPool(mongodb.PoolOptions{ServerSelectionTimeout: 3 * time.Second})
//	defer pool.DisconnectAll(ctx)
//
//	store, err := pool.Dial(ctx, base.Descriptor{Host: "localhost", Port: 27017, DBName: "directory"})
//
// An unreachable server fails Dial with base.ErrConnectionTimeout once the server
// selection window elapses. Driver-level retryable reads and writes are disabled.
package mongodb
