// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// Storage engines
const (
	EngineMongoDB = "mongodb"
	EngineMemory  = "memory"
)

// HTTPServer is the listen address of the web service
type HTTPServer struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	SecureCookies  bool     `yaml:"secure_cookies"`
}

// Settings is the process-wide configuration. It is read once at startup
// and not modified afterwards.
type Settings struct {
	Version    string     `yaml:"version"`
	HTTPServer HTTPServer `yaml:"http_server"`

	// Directory locates the global directory database
	Directory          base.Descriptor `yaml:"database"`
	DirectorySecretARN string          `yaml:"directory_secret_arn,omitempty"`
	AWSRegion          string          `yaml:"aws_region,omitempty"`

	HashSalt   string        `yaml:"hash_salt"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`

	RedisURL           string        `yaml:"redis_url,omitempty"`
	DescriptorCacheTTL time.Duration `yaml:"descriptor_cache_ttl"`

	StorageEngine            string `yaml:"storage_engine"`
	ServerSelectionTimeoutMs int    `yaml:"server_selection_timeout_ms"`
	OperationTimeoutMs       int    `yaml:"operation_timeout_ms"`
}

// Defaults returns the settings used when neither file nor environment say otherwise
func Defaults() *Settings {
	return &Settings{
		Version:                  "1.0",
		HTTPServer:               HTTPServer{Host: "0.0.0.0", Port: 8080},
		Directory:                base.Descriptor{Host: "localhost", Port: 27017, DBName: "directory"},
		SessionTTL:               12 * time.Hour,
		DescriptorCacheTTL:       5 * time.Minute,
		StorageEngine:            EngineMongoDB,
		ServerSelectionTimeoutMs: 3000,
		OperationTimeoutMs:       30000,
	}
}

// Load builds Settings from defaults, then the YAML file at path (skipped
// when path is empty), then environment overrides, and validates the result.
func Load(path string) (*Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), s); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFromEnv loads the file named by NUCLEOTIC_CONFIG, if any, plus environment overrides
func LoadFromEnv() (*Settings, error) {
	return Load(os.Getenv("NUCLEOTIC_CONFIG"))
}

func (s *Settings) applyEnv() error {
	setString(&s.Directory.Host, "DIRECTORY_HOST")
	setString(&s.Directory.Login, "DIRECTORY_LOGIN")
	setString(&s.Directory.Password, "DIRECTORY_PASSWORD")
	setString(&s.Directory.DBName, "DIRECTORY_DB")
	setString(&s.DirectorySecretARN, "DIRECTORY_SECRET_ARN")
	setString(&s.AWSRegion, "AWS_REGION")
	setString(&s.HashSalt, "HASH_SALT")
	setString(&s.JWTSecret, "JWT_SECRET")
	setString(&s.RedisURL, "REDIS_URL")
	setString(&s.HTTPServer.Host, "HTTP_HOST")
	setString(&s.StorageEngine, "STORAGE_ENGINE")

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		s.HTTPServer.AllowedOrigins = splitList(origins)
	}

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"DIRECTORY_PORT", &s.Directory.Port},
		{"PORT", &s.HTTPServer.Port},
		{"SERVER_SELECTION_TIMEOUT_MS", &s.ServerSelectionTimeoutMs},
		{"OPERATION_TIMEOUT_MS", &s.OperationTimeoutMs},
	} {
		if err := setInt(v.dst, v.name); err != nil {
			return err
		}
	}

	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		s.SessionTTL = ttl
	}
	return nil
}

// Validate checks that the settings can start the service
func (s *Settings) Validate() error {
	if err := s.Directory.Validate(); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	switch s.StorageEngine {
	case EngineMongoDB, EngineMemory:
	default:
		return fmt.Errorf("storage_engine must be %q or %q, got %q", EngineMongoDB, EngineMemory, s.StorageEngine)
	}
	if s.HashSalt == "" {
		return fmt.Errorf("hash_salt is required (HASH_SALT)")
	}
	if s.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required (JWT_SECRET)")
	}
	if s.HTTPServer.Port <= 0 || s.HTTPServer.Port > 65535 {
		return fmt.Errorf("http_server.port must be between 1 and 65535, got %d", s.HTTPServer.Port)
	}
	if s.ServerSelectionTimeoutMs <= 0 {
		return fmt.Errorf("server_selection_timeout_ms must be positive")
	}
	if s.OperationTimeoutMs < 0 {
		return fmt.Errorf("operation_timeout_ms must not be negative")
	}
	if s.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return nil
}

// ResolveDirectorySecret replaces the directory credentials with the ones
// held in DirectorySecretARN. Keys: username, password and optionally host,
// port, database. A no-op when no ARN is configured.
func (s *Settings) ResolveDirectorySecret(ctx context.Context, sm SecretsManager) error {
	if s.DirectorySecretARN == "" {
		return nil
	}
	secret, err := sm.GetSecret(ctx, s.DirectorySecretARN)
	if err != nil {
		return fmt.Errorf("directory credentials: %w", err)
	}

	d := s.Directory
	if v := secret["username"]; v != "" {
		d.Login = v
	}
	if v := secret["password"]; v != "" {
		d.Password = v
	}
	if v := secret["host"]; v != "" {
		d.Host = v
	}
	if v := secret["database"]; v != "" {
		d.DBName = v
	}
	if v := secret["port"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("directory credentials: invalid port %q", v)
		}
		d.Port = port
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("directory credentials: %w", err)
	}
	s.Directory = d
	return nil
}

// ServerSelectionTimeout is the bound on reaching a store
func (s *Settings) ServerSelectionTimeout() time.Duration {
	return time.Duration(s.ServerSelectionTimeoutMs) * time.Millisecond
}

// OperationTimeout bounds each store operation; zero leaves it to the caller's context
func (s *Settings) OperationTimeout() time.Duration {
	return time.Duration(s.OperationTimeoutMs) * time.Millisecond
}

// ListenAddress returns host:port for the HTTP server
func (s *Settings) ListenAddress() string {
	return net.JoinHostPort(s.HTTPServer.Host, strconv.Itoa(s.HTTPServer.Port))
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not an integer", name, raw)
	}
	*dst = n
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR}, ${VAR:-default} and $VAR references.
// Undefined variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ExampleConfigFile returns a commented configuration file
func ExampleConfigFile() string {
	return `# Nucleotic gateway configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default}

version: "1.0"

http_server:
  host: ${HTTP_HOST:-0.0.0.0}
  port: 8080
  allowed_origins: []     # cross-origin callers, e.g. ["https://app.example.com"]
  secure_cookies: false   # set when served over HTTPS

# Global directory (licenses, users, tenant descriptors)
database:
  host: ${DIRECTORY_HOST:-localhost}
  port: 27017
  login: ${DIRECTORY_LOGIN}
  password: ${DIRECTORY_PASSWORD}
  dbName: ${DIRECTORY_DB:-directory}

# Optional: take the directory login/password from AWS Secrets Manager
# directory_secret_arn: arn:aws:secretsmanager:eu-west-3:123456789012:secret:directory
# aws_region: eu-west-3

hash_salt: ${HASH_SALT}
jwt_secret: ${JWT_SECRET}
session_ttl: 12h

# Optional: shared session revocation list and license descriptor cache
redis_url: ${REDIS_URL}
descriptor_cache_ttl: 5m

storage_engine: mongodb   # mongodb | memory
server_selection_timeout_ms: 3000
operation_timeout_ms: 30000
`
}
