package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/friendsincode/keygate/internal/auth"
)

func TestTokenCommandMintsOperatorToken(t *testing.T) {
	t.Setenv("KEYGATE_DB_BACKEND", "sqlite")
	t.Setenv("KEYGATE_DB_DSN", ":memory:")
	t.Setenv("KEYGATE_JWT_SIGNING_KEY", "cli-test-key")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--env-file", "", "--subject", "ops"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	claims, err := auth.Parse([]byte("cli-test-key"), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if !claims.HasRole(auth.RoleOperator) || claims.Subject != "ops" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
