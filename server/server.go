// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/juleno/CA-DevAvance/auth"
	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

// SessionCookie carries the session token for browser clients
const SessionCookie = "nucleotic_session"

const shutdownTimeout = 10 * time.Second

// Options wires the server to the gateway and the session layer
type Options struct {
	Router        *gateway.Router
	Authenticator *auth.Authenticator
	Sessions      *auth.SessionIssuer

	// Revoker holds logged-out sessions. Defaults to an in-process list.
	Revoker auth.Revoker

	Logger         *logger.Logger
	AllowedOrigins []string
	SecureCookies  bool
}

// Server is the HTTP surface of the gateway
type Server struct {
	router   *gateway.Router
	auth     *auth.Authenticator
	sessions *auth.SessionIssuer
	revoker  auth.Revoker
	slog     *logger.Logger
	secure   bool

	routes  *mux.Router
	handler http.Handler
	logger  *log.Logger
}

// New builds the route table
func New(opts Options) (*Server, error) {
	if opts.Router == nil || opts.Authenticator == nil || opts.Sessions == nil {
		return nil, base.NewConnectorError("server", "New", "router, authenticator and sessions are required", base.ErrConfiguration)
	}

	s := &Server{
		router:   opts.Router,
		auth:     opts.Authenticator,
		sessions: opts.Sessions,
		revoker:  opts.Revoker,
		slog:     opts.Logger,
		secure:   opts.SecureCookies,
		logger:   log.New(os.Stdout, "[HTTP_SERVER] ", log.LstdFlags),
	}
	if s.revoker == nil {
		s.revoker = auth.NewMemoryRevoker()
	}
	if s.slog == nil {
		s.slog = logger.New("server")
	}

	s.routes = mux.NewRouter()
	s.routes.Use(s.instrument, s.requestContext)

	s.routes.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.routes.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	s.routes.HandleFunc("/login", s.handleLogin).Methods("POST")
	s.routes.HandleFunc("/logout", s.handleLogout).Methods("POST")

	api := s.routes.PathPrefix("/api").Subrouter()
	api.HandleFunc("/{collection}", s.withSession(s.handleFind)).Methods("GET")
	api.HandleFunc("/{collection}/count", s.withSession(s.handleCount)).Methods("GET")
	api.HandleFunc("/{collection}", s.withSession(s.handleSave)).Methods("POST")
	api.HandleFunc("/{collection}/{id}", s.withSession(s.handleRemove)).Methods("DELETE")

	corsOpts := cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}
	// cors treats an empty origin list as "*"
	if len(opts.AllowedOrigins) == 0 {
		corsOpts.AllowOriginFunc = func(string) bool { return false }
	}
	s.handler = cors.New(corsOpts).Handler(s.routes)

	return s, nil
}

// Handler returns the root handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Nucleotic gateway listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
