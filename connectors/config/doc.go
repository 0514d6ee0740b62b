// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package config loads the gateway settings.

Sources, later ones winning:
 1. Defaults()
 2. the YAML file named by NUCLEOTIC_CONFIG, with ${VAR} and ${VAR:-default} expanded
 3. environment variables (DIRECTORY_HOST, DIRECTORY_PORT, DIRECTORY_LOGIN,
    DIRECTORY_PASSWORD, DIRECTORY_DB, HASH_SALT, JWT_SECRET, REDIS_URL,
    HTTP_HOST, PORT, STORAGE_ENGINE, SERVER_SELECTION_TIMEOUT_MS, ...)

When directory_secret_arn is set, ResolveDirectorySecret replaces the
directory credentials with the ones held in AWS Secrets Manager (or, for a
non-ARN reference, in <PREFIX>_USERNAME / <PREFIX>_PASSWORD variables).

Settings are read-only once the server has started.
*/
package config
