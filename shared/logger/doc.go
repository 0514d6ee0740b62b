// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging with per-tenant context.

Each log entry includes:
  - Timestamp (RFC3339Nano, UTC)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (server, gateway, auth)
  - Instance ID and container name
  - Tenant (the bound business database, when known)
  - Request ID
  - Custom fields

# Usage

	log := logger.New("gateway")
	log.Info("tenant_acme", "req-456", "Document inserted", map[string]interface{}{
	    "collection": "Contacts",
	})

Within a request, bind tenant and request id once:

	rlog := log.WithRequest("", requestID)
	rlog.Warn("Archive written but mutation failed", fields)

# Output Format

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"gateway","instance_id":"i-abc123","container":"gw-xyz",
	 "tenant":"tenant_acme","request_id":"req-456",
	 "message":"Document inserted","fields":{"collection":"Contacts"}}

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
