/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/keygate/internal/codegen"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	SessionTTL    time.Duration
	MetricsBind   string

	// License code generation
	CodeLength          int
	MaxGenerateAttempts int
	MaxBatchSize        int
	DefaultDurationDays int

	// Attempt throttling for public license and session endpoints
	RateLimitPerMinute int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	// Peers allowed to set X-Forwarded-For / X-Real-IP. Empty means the
	// socket address is the client, whatever headers say.
	TrustedProxies []netip.Prefix

	// Domain event forwarding (empty URL keeps events in-process)
	NATSURL           string
	NATSSubjectPrefix string

	// S3 export target for generated code batches
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"KEYGATE_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"KEYGATE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"KEYGATE_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"KEYGATE_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"KEYGATE_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"KEYGATE_JWT_SIGNING_KEY"}, ""),
		SessionTTL:    time.Duration(getEnvIntAny([]string{"KEYGATE_SESSION_TTL_MINUTES"}, 60*24)) * time.Minute,
		MetricsBind:   getEnvAny([]string{"KEYGATE_METRICS_BIND"}, "127.0.0.1:9000"),

		CodeLength:          getEnvIntAny([]string{"KEYGATE_CODE_LENGTH"}, 16),
		MaxGenerateAttempts: getEnvIntAny([]string{"KEYGATE_CODE_MAX_ATTEMPTS"}, 5),
		MaxBatchSize:        getEnvIntAny([]string{"KEYGATE_CODE_MAX_BATCH"}, 1000),
		DefaultDurationDays: getEnvIntAny([]string{"KEYGATE_DEFAULT_DURATION_DAYS"}, 30),

		RateLimitPerMinute: getEnvIntAny([]string{"KEYGATE_RATE_LIMIT_PER_MINUTE"}, 30),
		RedisAddr:          getEnvAny([]string{"KEYGATE_REDIS_ADDR"}, ""),
		RedisPassword:      getEnvAny([]string{"KEYGATE_REDIS_PASSWORD"}, ""),
		RedisDB:            getEnvIntAny([]string{"KEYGATE_REDIS_DB"}, 0),

		NATSURL:           getEnvAny([]string{"KEYGATE_NATS_URL"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"KEYGATE_NATS_SUBJECT_PREFIX"}, "keygate.events"),

		S3AccessKeyID:     getEnvAny([]string{"KEYGATE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"KEYGATE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"KEYGATE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"KEYGATE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"KEYGATE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"KEYGATE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"KEYGATE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"KEYGATE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"KEYGATE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	proxies, err := ParseTrustedProxies(getEnvAny([]string{"KEYGATE_TRUSTED_PROXIES"}, ""))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks the values Load cannot default sensibly.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}

	if c.DBDSN == "" {
		return fmt.Errorf("KEYGATE_DB_DSN or DATABASE_URL must be provided")
	}

	if c.JWTSigningKey == "" {
		return fmt.Errorf("KEYGATE_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(c.Environment, "production") && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("KEYGATE_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	// Codes shorter than this are guessable within the rate limit.
	if c.CodeLength < 8 || c.CodeLength > codegen.MaxLength {
		return fmt.Errorf("KEYGATE_CODE_LENGTH must be between 8 and %d, got %d", codegen.MaxLength, c.CodeLength)
	}

	if c.MaxGenerateAttempts < 1 {
		return fmt.Errorf("KEYGATE_CODE_MAX_ATTEMPTS must be at least 1")
	}

	if c.MaxBatchSize < 1 {
		return fmt.Errorf("KEYGATE_CODE_MAX_BATCH must be at least 1")
	}

	if c.DefaultDurationDays < 1 {
		return fmt.Errorf("KEYGATE_DEFAULT_DURATION_DAYS must be at least 1")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("KEYGATE_SESSION_TTL_MINUTES must be positive")
	}

	return nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use KEYGATE_ENV",
		"JWT_SIGNING_KEY": "use KEYGATE_JWT_SIGNING_KEY",
		"SECRET_KEY":      "use KEYGATE_JWT_SIGNING_KEY",
		"TRACING_ENABLED": "use KEYGATE_TRACING_ENABLED",
		"OTLP_ENDPOINT":   "use KEYGATE_OTLP_ENDPOINT",
		"REDIS_ADDR":      "use KEYGATE_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// ParseTrustedProxies reads a comma separated list of addresses or CIDR
// prefixes, e.g. "10.0.0.0/8, 192.0.2.10".
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			prefix, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("KEYGATE_TRUSTED_PROXIES: %w", err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("KEYGATE_TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// HTTPAddr returns the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
