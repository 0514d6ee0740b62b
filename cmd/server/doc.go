// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Command server runs the Nucleotic document gateway.

# Usage

	server

# Environment Variables

Required:
  - HASH_SALT: salt appended to passwords before hashing
  - JWT_SECRET: key signing session tokens

Optional:
  - NUCLEOTIC_CONFIG: path to a YAML configuration file
  - DIRECTORY_HOST, DIRECTORY_PORT, DIRECTORY_LOGIN, DIRECTORY_PASSWORD, DIRECTORY_DB:
    global directory location (default: localhost:27017/directory)
  - DIRECTORY_SECRET_ARN: AWS Secrets Manager ARN holding the directory credentials
  - REDIS_URL: shared session revocation list and descriptor cache
  - HTTP_HOST, PORT: listen address (default: 0.0.0.0:8080)
  - STORAGE_ENGINE: "mongodb" or "memory" (default: mongodb)

# Example

	export HASH_SALT=... JWT_SECRET=...
	export DIRECTORY_HOST=mongo.internal DIRECTORY_LOGIN=gateway DIRECTORY_PASSWORD=...
	./server
*/
package main
