/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/keygate/internal/export"
	"github.com/friendsincode/keygate/internal/license"
	"github.com/friendsincode/keygate/internal/models"
)

var (
	grantsCount  int
	grantsDays   int
	grantsFormat string
)

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Create and list shared license grants",
}

var grantsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create license grants",
	Long: `Create license grants. A grant can be redeemed once, by any account,
and activates it for --days counted from redemption.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(grantsFormat)
		if err != nil {
			return err
		}
		if grantsCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}

		return withLicenses(func(svc *license.Service) error {
			grants := make([]models.LicenseGrant, 0, grantsCount)
			for range grantsCount {
				grant, err := svc.CreateGrant(cmd.Context(), durationFlag(grantsDays))
				if err != nil {
					return fmt.Errorf("create grant: %w", err)
				}
				grants = append(grants, *grant)
			}
			return export.Encode(cmd.OutOrStdout(), format, export.FromGrants(grants))
		})
	},
}

var grantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List license grants, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(grantsFormat)
		if err != nil {
			return err
		}

		return withLicenses(func(svc *license.Service) error {
			grants, err := svc.ListGrants(cmd.Context(), license.ListOptions{
				Offset:     listOffset,
				Limit:      listLimit,
				OnlyUnused: listUnused,
			})
			if err != nil {
				return fmt.Errorf("list grants: %w", err)
			}
			return export.Encode(cmd.OutOrStdout(), format, export.FromGrants(grants))
		})
	},
}

func init() {
	grantsCreateCmd.Flags().IntVarP(&grantsCount, "count", "n", 1, "Number of grants to create")
	grantsCreateCmd.Flags().IntVar(&grantsDays, "days", 0, "Days of access each grant gives (default KEYGATE_DEFAULT_DURATION_DAYS)")
	grantsCreateCmd.Flags().StringVar(&grantsFormat, "format", "csv", "Output format: csv, json or yaml")

	grantsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	grantsListCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum rows to return")
	grantsListCmd.Flags().BoolVar(&listUnused, "unused", false, "Only show grants that have not been redeemed")
	grantsListCmd.Flags().StringVar(&grantsFormat, "format", "csv", "Output format: csv, json or yaml")

	grantsCmd.AddCommand(grantsCreateCmd, grantsListCmd)
	rootCmd.AddCommand(grantsCmd)
}
