// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import "errors"

// Failure taxonomy shared by every layer. Callers match with errors.Is;
// the concrete error is usually a *ConnectorError wrapping one of these.
var (
	// ErrConfiguration indicates a malformed or incomplete connection descriptor
	ErrConfiguration = errors.New("invalid connection descriptor")

	// ErrConnectionTimeout indicates the store was not reachable within the server selection window
	ErrConnectionTimeout = errors.New("store unreachable within server selection timeout")

	// ErrNotBound indicates a business operation ran before a tenant database was bound
	ErrNotBound = errors.New("business database not bound")

	// ErrAuthContextMissing indicates a mutation with no current user identity
	ErrAuthContextMissing = errors.New("no authenticated user in request context")

	// ErrAuthenticationFailed indicates no license/user record matched the credentials
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnsupportedOperation indicates an operation the connector role does not offer
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidIdentity indicates a document identity that cannot be converted to an ObjectID
	ErrInvalidIdentity = errors.New("invalid document identity")

	// ErrDocumentNotFound indicates no document matched a single-document operation
	ErrDocumentNotFound = errors.New("document not found")
)
