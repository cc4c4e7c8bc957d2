package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("KEYGATE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("KEYGATE_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("KEYGATE_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.CodeLength != 16 {
		t.Fatalf("expected default code length 16, got %d", cfg.CodeLength)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected default session ttl 24h, got %s", cfg.SessionTTL)
	}
}

func TestLoadAcceptsDatabaseURLAlias(t *testing.T) {
	t.Setenv("KEYGATE_DB_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/keygate")
	t.Setenv("KEYGATE_JWT_SIGNING_KEY", "supersecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "postgres://localhost/keygate" {
		t.Fatalf("unexpected dsn: %q", cfg.DBDSN)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("KEYGATE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("KEYGATE_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) != 2 {
		t.Fatalf("expected 2 legacy env warnings, got %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{"KEYGATE_DB_DSN": "", "DATABASE_URL": ""}},
		{"missing jwt key", map[string]string{"KEYGATE_JWT_SIGNING_KEY": ""}},
		{"unknown backend", map[string]string{"KEYGATE_DB_BACKEND": "oracle"}},
		{"short code", map[string]string{"KEYGATE_CODE_LENGTH": "4"}},
		{"zero attempts", map[string]string{"KEYGATE_CODE_MAX_ATTEMPTS": "0"}},
		{"zero default duration", map[string]string{"KEYGATE_DEFAULT_DURATION_DAYS": "0"}},
		{"weak production key", map[string]string{"KEYGATE_ENV": "production"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KEYGATE_DB_DSN", "file:test.db")
			t.Setenv("KEYGATE_DB_BACKEND", "sqlite")
			t.Setenv("KEYGATE_JWT_SIGNING_KEY", "supersecret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies(" 10.0.0.0/8, 192.0.2.10 ,,2001:db8::/32,10.1.2.3/16")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.10/32", "2001:db8::/32", "10.1.0.0/16"}
	if len(prefixes) != len(want) {
		t.Fatalf("got %v, want %v", prefixes, want)
	}
	for i, p := range prefixes {
		if p.String() != want[i] {
			t.Errorf("prefix %d = %s, want %s", i, p, want[i])
		}
	}

	if _, err := ParseTrustedProxies("10.0.0.0/33"); err == nil {
		t.Fatal("expected invalid prefix to fail")
	}
	if _, err := ParseTrustedProxies("proxy.internal"); err == nil {
		t.Fatal("expected hostname to fail")
	}
}

func TestLoadRejectsBadTrustedProxies(t *testing.T) {
	t.Setenv("KEYGATE_DB_DSN", "file:test.db")
	t.Setenv("KEYGATE_DB_BACKEND", "sqlite")
	t.Setenv("KEYGATE_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("KEYGATE_TRUSTED_PROXIES", "10.0.0.0/8,nope")
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail")
	}
}
