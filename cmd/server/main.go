// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/juleno/CA-DevAvance/connectors/config"
	"github.com/juleno/CA-DevAvance/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	app, err := server.NewApp(ctx, settings)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
	}
}
