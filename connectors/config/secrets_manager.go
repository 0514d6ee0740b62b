// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret reference to its key/value pairs
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// secretValueAPI is the part of the AWS client the manager calls
type secretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager,
// caching each secret for a TTL
type AWSSecretsManager struct {
	client secretValueAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager loads the default AWS configuration and creates a manager
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSecretsManager(client secretValueAPI, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// GetSecret returns the secret's JSON object. A secret that is not a JSON
// object is returned under the key "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s", maskARN(secretARN))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &values); err != nil {
		values = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{value: values, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return values, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// maskARN shows only the last 8 characters of an ARN
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// EnvSecretsManager reads secrets from environment variables. The secret
// reference is a prefix: "DIRECTORY" reads DIRECTORY_USERNAME, DIRECTORY_PASSWORD,
// DIRECTORY_HOST, DIRECTORY_PORT and DIRECTORY_DATABASE.
type EnvSecretsManager struct{}

// NewEnvSecretsManager creates an EnvSecretsManager
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

// GetSecret collects the variables present under the prefix
func (s *EnvSecretsManager) GetSecret(ctx context.Context, prefix string) (map[string]string, error) {
	values := make(map[string]string)
	for _, field := range []string{"USERNAME", "PASSWORD", "HOST", "PORT", "DATABASE"} {
		if v := os.Getenv(prefix + "_" + field); v != "" {
			values[strings.ToLower(field)] = v
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", prefix)
	}
	return values, nil
}

// LocalSecretsManager holds secrets in memory, for development and tests
type LocalSecretsManager struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewLocalSecretsManager creates an empty LocalSecretsManager
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{secrets: make(map[string]map[string]string)}
}

// GetSecret returns a stored secret
func (s *LocalSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, ok := s.secrets[secretARN]; ok {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", secretARN)
}

// SetSecret stores a secret
func (s *LocalSecretsManager) SetSecret(secretARN string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretARN] = value
}

// NewSecretsManager picks the manager for a secret reference: ARNs go to
// AWS Secrets Manager, anything else is read as an environment prefix
func NewSecretsManager(ctx context.Context, ref, region string) (SecretsManager, error) {
	if strings.HasPrefix(ref, "arn:") {
		return NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{Region: region})
	}
	return NewEnvSecretsManager(), nil
}
