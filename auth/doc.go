// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package auth logs users in against the global directory, binds their
// tenant database, and issues the session tokens that let later requests
// bind it again. Logged-out tokens are remembered in Redis (or in memory
// without Redis) until they expire.
package auth
