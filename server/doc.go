// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package server exposes the gateway over HTTP.

Routes:

	GET    /health                     directory reachability
	GET    /prometheus                 metrics
	POST   /login                      {login, password} -> session cookie + user record
	POST   /logout                     revoke the current session
	GET    /api/{collection}           filter, fields, skip, limit, sort=field:1,other:-1
	GET    /api/{collection}/count     estimated document count
	POST   /api/{collection}           save: insert, or replace when _id is set
	DELETE /api/{collection}/{id}      archiving remove with relation cleanup

Document bodies, filters and responses are relaxed Extended JSON. Failures
are answered with a notification {type, code, label}.

Each request gets its own gateway.RequestContext, closed when the handler
returns. /api routes require a session token, sent as a Bearer header or
the nucleotic_session cookie; the license's business database is bound
before the handler runs.
*/
package server
