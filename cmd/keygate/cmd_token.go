/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/keygate/internal/auth"
)

var (
	tokenRole    string
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the operator API",
	Long: `Mint a signed bearer token with KEYGATE_JWT_SIGNING_KEY.

Example:
  curl -H "Authorization: Bearer $(keygate token --role operator)" \
    -d '{"duration_days":30}' http://localhost:8080/api/v1/licenses
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if tokenRole != auth.RoleOperator {
			return fmt.Errorf("unsupported role %q; account tokens come from logging in", tokenRole)
		}
		if tokenTTL <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}

		claims := auth.Claims{Roles: []string{tokenRole}}
		claims.Subject = tokenSubject
		token, err := auth.Issue([]byte(cfg.JWTSigningKey), claims, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleOperator, "Role to grant")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Subject recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
