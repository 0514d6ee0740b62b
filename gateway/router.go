// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

// Connector roles, used in logs, metrics and error messages
const (
	RoleDirectory = "directory"
	RoleBusiness  = "business"
)

// RouterOptions configures a Router
type RouterOptions struct {
	// Directory is the process-wide descriptor of the global directory
	Directory base.Descriptor

	// Dialer opens stores; shared pools live behind it
	Dialer base.Dialer

	// Cleaner purges relations after a business remove. Nil disables cleanup.
	Cleaner RelationCleaner

	// Logger receives structured request logs. Defaults to a "gateway" logger on stdout.
	Logger *logger.Logger

	// Now is the clock used for common stamps and archive dates. Defaults to time.Now.
	Now func() time.Time
}

// Router holds the read-only state shared by every request and hands out
// one RequestContext per request. Safe for concurrent use.
type Router struct {
	directory base.Descriptor
	dial      base.Dialer
	cleaner   RelationCleaner
	slog      *logger.Logger
	now       func() time.Time
	logger    *log.Logger
}

// NewRouter validates the options and returns a Router
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Dialer == nil {
		return nil, base.NewConnectorError("gateway", "NewRouter", "no dialer configured", base.ErrConfiguration)
	}
	if err := opts.Directory.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		directory: opts.Directory,
		dial:      opts.Dialer,
		cleaner:   opts.Cleaner,
		slog:      opts.Logger,
		now:       opts.Now,
		logger:    log.New(os.Stdout, "[TENANT_ROUTER] ", log.LstdFlags),
	}
	if r.slog == nil {
		r.slog = logger.New("gateway")
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.logger.Printf("Directory configured at %s", opts.Directory.Redacted())
	return r, nil
}

// DirectoryDescriptor returns the configured directory descriptor
func (r *Router) DirectoryDescriptor() base.Descriptor {
	return r.directory
}

// NewContext starts a request. An empty requestID gets a generated one.
// The caller owns the returned context and must Close it when the request ends.
func (r *Router) NewContext(requestID string) *RequestContext {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return &RequestContext{
		router:    r,
		requestID: requestID,
		log:       r.slog.WithRequest("", requestID),
	}
}

// IsDirectoryError reports whether err came from the directory connector.
// The outermost role in the chain decides; store errors further down are
// named after their database and are not roles.
func IsDirectoryError(err error) bool {
	var ce *base.ConnectorError
	for errors.As(err, &ce) {
		switch ce.ConnectorName {
		case RoleDirectory:
			return true
		case RoleBusiness:
			return false
		}
		err = ce.Cause
	}
	return false
}
