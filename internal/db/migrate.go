/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/keygate/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Account{},
		&models.LicenseCode{},
		&models.LicenseGrant{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if database.Dialector.Name() == "postgres" {
		// Partial index for the operator listing of unredeemed codes.
		if err := database.Exec(
			"CREATE INDEX IF NOT EXISTS idx_license_codes_unused_expiry ON license_codes (expires_at) WHERE is_used = false",
		).Error; err != nil {
			return fmt.Errorf("create unused code index: %w", err)
		}
	}

	return nil
}
