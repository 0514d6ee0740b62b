// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/juleno/CA-DevAvance/auth"
	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/connectors/config"
	"github.com/juleno/CA-DevAvance/connectors/memory"
	"github.com/juleno/CA-DevAvance/connectors/mongodb"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

// App is a fully wired gateway process: storage engine, tenant router,
// session layer and HTTP server, built from Settings.
type App struct {
	Settings      *config.Settings
	Router        *gateway.Router
	Authenticator *auth.Authenticator
	Server        *Server

	// Engine is set when the memory storage engine is selected
	Engine *memory.Engine

	pool   *mongodb.Pool
	redis  *redis.Client
	logger *log.Logger
}

// NewApp resolves secrets, selects the storage engine and wires every component.
// Redis is optional: without REDIS_URL sessions are revoked in-process and
// license descriptors are not cached.
func NewApp(ctx context.Context, s *config.Settings) (*App, error) {
	a := &App{
		Settings: s,
		logger:   log.New(os.Stdout, "[NUCLEOTIC] ", log.LstdFlags),
	}

	if s.DirectorySecretARN != "" {
		sm, err := config.NewSecretsManager(ctx, s.DirectorySecretARN, s.AWSRegion)
		if err != nil {
			return nil, err
		}
		if err := s.ResolveDirectorySecret(ctx, sm); err != nil {
			return nil, err
		}
		a.logger.Printf("Directory credentials loaded from secret")
	}

	var dial base.Dialer
	switch s.StorageEngine {
	case config.EngineMemory:
		a.Engine = memory.NewEngine()
		dial = a.Engine.Dial
		a.logger.Printf("Using in-memory storage engine, data is not persisted")
	default:
		a.pool = mongodb.NewPool(mongodb.PoolOptions{
			ServerSelectionTimeout: s.ServerSelectionTimeout(),
			OperationTimeout:       s.OperationTimeout(),
		})
		dial = a.pool.Dial
	}

	router, err := gateway.NewRouter(gateway.RouterOptions{
		Directory: s.Directory,
		Dialer:    dial,
		Cleaner:   gateway.RelationsCollectionCleaner{},
		Logger:    logger.New("gateway"),
	})
	if err != nil {
		return nil, err
	}
	a.Router = router

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	var cache auth.DescriptorCache
	if s.RedisURL != "" {
		client, err := auth.NewRedisClient(ctx, s.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		revoker = auth.NewRedisRevoker(client)
		cache = auth.NewRedisDescriptorCache(client, s.DescriptorCacheTTL)
	} else {
		a.logger.Printf("REDIS_URL not set, session revocation is local to this instance")
	}

	a.Authenticator = auth.NewAuthenticator(auth.AuthenticatorOptions{
		HashSalt: s.HashSalt,
		Cache:    cache,
		Logger:   logger.New("auth"),
	})

	sessions, err := auth.NewSessionIssuer(s.JWTSecret, s.SessionTTL)
	if err != nil {
		return nil, err
	}

	a.Server, err = New(Options{
		Router:         router,
		Authenticator:  a.Authenticator,
		Sessions:       sessions,
		Revoker:        revoker,
		Logger:         logger.New("server"),
		AllowedOrigins: s.HTTPServer.AllowedOrigins,
		SecureCookies:  s.HTTPServer.SecureCookies,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Run serves HTTP until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx, a.Settings.ListenAddress())
}

// Close releases the engine clients and the Redis connection
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.pool != nil {
		if err := a.pool.DisconnectAll(ctx); err != nil {
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
