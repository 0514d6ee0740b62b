// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

// Principal is the authenticated caller of a request
type Principal struct {
	UserID    primitive.ObjectID
	Login     string
	LicenseID primitive.ObjectID
}

// RequestContext holds the connections of one request: at most one directory
// handle, opened on first use, and at most one business handle, opened by Bind.
// It is not safe for concurrent use; each request gets its own.
type RequestContext struct {
	router    *Router
	requestID string
	principal *Principal

	directory *Documents
	business  *Documents
	bound     base.Descriptor

	log *logger.Scoped
}

// RequestID returns the id used to correlate logs of this request
func (c *RequestContext) RequestID() string {
	return c.requestID
}

// SetPrincipal records the authenticated caller
func (c *RequestContext) SetPrincipal(p Principal) {
	c.principal = &p
}

// Principal returns the authenticated caller, if any
func (c *RequestContext) Principal() (Principal, bool) {
	if c.principal == nil {
		return Principal{}, false
	}
	return *c.principal, true
}

// Directory returns the directory connector, opening it on the first call.
// Later calls return the same handle.
func (c *RequestContext) Directory(ctx context.Context) (*Documents, error) {
	if c.directory != nil {
		return c.directory, nil
	}

	store, err := c.router.dial(ctx, c.router.directory)
	if err != nil {
		connectionsOpenedTotal.WithLabelValues(RoleDirectory, "error").Inc()
		c.log.Error("Directory connection failed", map[string]interface{}{
			"descriptor": c.router.directory.Redacted(),
			"error":      err.Error(),
		})
		return nil, base.NewConnectorError(RoleDirectory, "Connect", "cannot open global directory", err)
	}
	connectionsOpenedTotal.WithLabelValues(RoleDirectory, "success").Inc()

	c.directory = &Documents{store: store, rc: c, role: RoleDirectory}
	return c.directory, nil
}

// Bind opens the business connector on d. Binding is first-wins: once a
// business handle exists, later calls leave it in place and return nil.
func (c *RequestContext) Bind(ctx context.Context, d base.Descriptor) error {
	if c.business != nil {
		if d != c.bound {
			c.log.Debug("Business connection already bound, descriptor ignored", map[string]interface{}{
				"bound":   c.bound.Redacted(),
				"ignored": d.Redacted(),
			})
		}
		return nil
	}

	store, err := c.router.dial(ctx, d)
	if err != nil {
		connectionsOpenedTotal.WithLabelValues(RoleBusiness, "error").Inc()
		c.log.Error("Business connection failed", map[string]interface{}{
			"descriptor": d.Redacted(),
			"error":      err.Error(),
		})
		return base.NewConnectorError(RoleBusiness, "Bind",
			fmt.Sprintf("cannot open business database %s", d.DBName), err)
	}
	connectionsOpenedTotal.WithLabelValues(RoleBusiness, "success").Inc()

	c.business = &Documents{store: store, rc: c, role: RoleBusiness}
	c.bound = d
	c.log = c.log.WithTenant(d.DBName)
	c.log.Info("Business database bound", map[string]interface{}{"descriptor": d.Redacted()})
	return nil
}

// Bound reports whether a business connector has been bound
func (c *RequestContext) Bound() bool {
	return c.business != nil
}

// Tenant returns the bound business database name, or "" before Bind
func (c *RequestContext) Tenant() string {
	return c.bound.DBName
}

// Business returns the bound business connector
func (c *RequestContext) Business() (*Documents, error) {
	if c.business == nil {
		return nil, base.NewConnectorError(RoleBusiness, "Business",
			"no business database bound in this request", base.ErrNotBound)
	}
	return c.business, nil
}

// Close releases both handles. The underlying client pools stay open for
// other requests. Safe to call more than once.
func (c *RequestContext) Close(ctx context.Context) error {
	var firstErr error
	for _, d := range []*Documents{c.business, c.directory} {
		if d == nil {
			continue
		}
		if err := d.store.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.business = nil
	c.directory = nil
	return firstErr
}

// Logger returns the request-scoped logger
func (c *RequestContext) Logger() *logger.Scoped {
	return c.log
}
