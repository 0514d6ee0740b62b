// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package notify holds the stable notification vocabulary returned to browser
// clients. Clients match on Code; labels may be reworded.
package notify

import (
	"errors"
	"net/http"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// Notification is one {type, code, label} triple
type Notification struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

var (
	UnreachableGlobalDirectory = Notification{Type: "error", Code: "0-101", Label: "Unreachable global directory"}
	UnreachableBusinessDB      = Notification{Type: "error", Code: "0-102", Label: "Unreachable business database"}
	AuthenticationFailed       = Notification{Type: "error", Code: "1-101", Label: "Authentication failed"}
	SessionDestroyed           = Notification{Type: "info", Code: "1-102", Label: "Session destroyed"}
	NoActiveSession            = Notification{Type: "error", Code: "1-103", Label: "No active session"}
	InvalidIdentity            = Notification{Type: "error", Code: "2-101", Label: "Invalid document identity"}
	UnsupportedOperation       = Notification{Type: "error", Code: "2-102", Label: "Unsupported operation"}
	InvalidDescriptor          = Notification{Type: "error", Code: "2-103", Label: "Invalid connection descriptor"}
	DocumentNotFound           = Notification{Type: "error", Code: "2-104", Label: "Document not found"}
	InvalidRequest             = Notification{Type: "error", Code: "2-105", Label: "Malformed request"}
	InternalError              = Notification{Type: "error", Code: "9-999", Label: "Internal error"}
)

// All lists every notification, in code order
var All = []Notification{
	UnreachableGlobalDirectory,
	UnreachableBusinessDB,
	AuthenticationFailed,
	SessionDestroyed,
	NoActiveSession,
	InvalidIdentity,
	UnsupportedOperation,
	InvalidDescriptor,
	DocumentNotFound,
	InvalidRequest,
	InternalError,
}

// FromError maps the failure taxonomy to a notification and HTTP status.
// directory tells a directory timeout apart from a business database timeout.
func FromError(err error, directory bool) (Notification, int) {
	switch {
	case err == nil:
		return Notification{}, http.StatusOK
	case errors.Is(err, base.ErrConnectionTimeout):
		if directory {
			return UnreachableGlobalDirectory, http.StatusServiceUnavailable
		}
		return UnreachableBusinessDB, http.StatusServiceUnavailable
	case errors.Is(err, base.ErrAuthenticationFailed):
		return AuthenticationFailed, http.StatusUnauthorized
	case errors.Is(err, base.ErrNotBound), errors.Is(err, base.ErrAuthContextMissing):
		return NoActiveSession, http.StatusUnauthorized
	case errors.Is(err, base.ErrInvalidIdentity):
		return InvalidIdentity, http.StatusBadRequest
	case errors.Is(err, base.ErrUnsupportedOperation):
		return UnsupportedOperation, http.StatusMethodNotAllowed
	case errors.Is(err, base.ErrConfiguration):
		return InvalidDescriptor, http.StatusInternalServerError
	case errors.Is(err, base.ErrDocumentNotFound):
		return DocumentNotFound, http.StatusNotFound
	}
	return InternalError, http.StatusInternalServerError
}
