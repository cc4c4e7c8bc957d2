/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/keygate/internal/clock"
	"github.com/friendsincode/keygate/internal/db"
	"github.com/friendsincode/keygate/internal/export"
	"github.com/friendsincode/keygate/internal/license"
)

var (
	codesCount    int
	codesDays     int
	codesFormat   string
	codesS3Bucket string
	codesS3Prefix string
	codesUpload   bool
	listOffset    int
	listLimit     int
	listUnused    bool
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Generate, list and validate license codes",
}

var codesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a batch of license codes",
	Long: `Generate license codes in a single transaction and print them.

Examples:
  # Ten 30-day codes as CSV
  keygate codes generate --count 10 --days 30

  # Upload a batch to S3 as JSON instead of printing it
  keygate codes generate --count 500 --days 365 --format json --s3-bucket resellers
`,
	RunE: runCodesGenerate,
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List license codes, newest first",
	RunE:  runCodesList,
}

var codesValidateCmd = &cobra.Command{
	Use:   "validate <code>",
	Short: "Check a license code without redeeming it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCodesValidate,
}

func init() {
	codesGenerateCmd.Flags().IntVarP(&codesCount, "count", "n", 1, "Number of codes to generate")
	codesGenerateCmd.Flags().IntVar(&codesDays, "days", 0, "Days each code stays valid (default KEYGATE_DEFAULT_DURATION_DAYS)")
	codesGenerateCmd.Flags().StringVar(&codesFormat, "format", "csv", "Output format: csv, json or yaml")
	codesGenerateCmd.Flags().StringVar(&codesS3Bucket, "s3-bucket", "", "Upload the batch to this bucket instead of printing it")
	codesGenerateCmd.Flags().BoolVar(&codesUpload, "upload", false, "Upload to KEYGATE_S3_BUCKET instead of printing")
	codesGenerateCmd.Flags().StringVar(&codesS3Prefix, "s3-prefix", "license-codes", "Object key prefix for uploads")

	codesListCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	codesListCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum rows to return")
	codesListCmd.Flags().BoolVar(&listUnused, "unused", false, "Only show codes that have not been redeemed")
	codesListCmd.Flags().StringVar(&codesFormat, "format", "csv", "Output format: csv, json or yaml")

	codesCmd.AddCommand(codesGenerateCmd, codesListCmd, codesValidateCmd)
	rootCmd.AddCommand(codesCmd)
}

// withLicenses runs fn against a license service on a freshly opened database.
func withLicenses(fn func(*license.Service) error) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	return fn(license.NewService(database, license.ConfigFrom(cfg), logger))
}

func durationFlag(days int) int {
	if days == 0 {
		return cfg.DefaultDurationDays
	}
	return days
}

func runCodesGenerate(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(codesFormat)
	if err != nil {
		return err
	}

	return withLicenses(func(svc *license.Service) error {
		codes, err := svc.CreateBatch(cmd.Context(), codesCount, durationFlag(codesDays))
		if err != nil {
			return fmt.Errorf("generate codes: %w", err)
		}
		records := export.FromCodes(codes)

		bucket := codesS3Bucket
		if bucket == "" && codesUpload {
			bucket = cfg.S3Bucket
			if bucket == "" {
				return fmt.Errorf("--upload needs KEYGATE_S3_BUCKET or --s3-bucket")
			}
		}
		if bucket == "" {
			return export.Encode(cmd.OutOrStdout(), format, records)
		}

		store, err := export.NewS3Store(cmd.Context(), export.S3Config{
			Bucket:          bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return err
		}
		key, err := export.Upload(cmd.Context(), store, codesS3Prefix, format, records, clock.System{})
		if err != nil {
			return fmt.Errorf("upload codes: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d codes to %s\n", len(codes), store.URI(key))
		return nil
	})
}

func runCodesList(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(codesFormat)
	if err != nil {
		return err
	}

	return withLicenses(func(svc *license.Service) error {
		codes, err := svc.List(cmd.Context(), license.ListOptions{
			Offset:     listOffset,
			Limit:      listLimit,
			OnlyUnused: listUnused,
		})
		if err != nil {
			return fmt.Errorf("list codes: %w", err)
		}
		return export.Encode(cmd.OutOrStdout(), format, export.FromCodes(codes))
	})
}

func runCodesValidate(cmd *cobra.Command, args []string) error {
	return withLicenses(func(svc *license.Service) error {
		v, err := svc.Validate(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("validate code: %w", err)
		}
		if !v.Valid() {
			return v.Status.Err()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "valid until %s\n", v.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	})
}
