// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/juleno/CA-DevAvance/auth"
	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/gateway"
)

type contextKey int

const (
	requestContextKey contextKey = iota
	claimsKey
)

const closeTimeout = 5 * time.Second

// instrument records request count and latency per route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		promRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		promRequestDuration.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// requestContext gives every request its own gateway.RequestContext and
// releases it when the handler returns
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := s.router.NewContext(r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", rc.RequestID())

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := rc.Close(ctx); err != nil {
				rc.Logger().Warn("Request connections not released", map[string]interface{}{"error": err.Error()})
			}
		}()

		ctx := context.WithValue(r.Context(), requestContextKey, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestContextFrom(r *http.Request) *gateway.RequestContext {
	rc, _ := r.Context().Value(requestContextKey).(*gateway.RequestContext)
	return rc
}

func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return c
}

// withSession admits requests carrying a live session and binds the
// business database of the session's license before calling next
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := requestContextFrom(r)

		claims, err := s.session(r)
		if err != nil {
			s.writeError(w, rc, err)
			return
		}
		p, err := claims.Principal()
		if err != nil {
			s.writeError(w, rc, err)
			return
		}
		if err := s.auth.Rebind(r.Context(), rc, p); err != nil {
			s.writeError(w, rc, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// session verifies the request's token and checks it was not logged out
func (s *Server) session(r *http.Request) (*auth.Claims, error) {
	token := sessionToken(r)
	if token == "" {
		return nil, base.NewConnectorError("server", "Session", "no session token", base.ErrAuthContextMissing)
	}

	claims, err := s.sessions.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoker.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return nil, base.NewConnectorError("server", "Session", "revocation list unavailable", err)
	}
	if revoked {
		return nil, auth.ErrSessionRevoked
	}
	return claims, nil
}

// sessionToken reads a Bearer token, falling back to the session cookie
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
