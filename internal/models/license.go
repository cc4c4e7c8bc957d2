/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LicenseCode is a single-use activation token with its own expiration.
// UsedBy is set if and only if IsUsed.
type LicenseCode struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Code      string     `gorm:"size:64;uniqueIndex;not null" json:"code"`
	IsUsed    bool       `gorm:"not null;index" json:"is_used"`
	UsedBy    *string    `gorm:"type:varchar(36);index" json:"used_by,omitempty"`
	UsedAt    *time.Time `gorm:"precision:6" json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"precision:6;index" json:"created_at"`
	ExpiresAt time.Time  `gorm:"precision:6;not null;check:chk_license_codes_expiry,expires_at > created_at" json:"expires_at"`
}

// TableName pins the table name.
func (LicenseCode) TableName() string {
	return "license_codes"
}

// NewLicenseCode returns an unused code created at createdAt and valid for duration.
func NewLicenseCode(code string, createdAt time.Time, duration time.Duration) *LicenseCode {
	createdAt = createdAt.UTC()
	return &LicenseCode{
		ID:        uuid.NewString(),
		Code:      code,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(duration),
	}
}

// ExpiredAt reports whether the code is past its expiration at now.
// A code expiring exactly at now is still valid.
func (c *LicenseCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// BeforeSave stores timestamps as UTC.
func (c *LicenseCode) BeforeSave(tx *gorm.DB) error {
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.UsedAt = utcPtr(c.UsedAt)
	return nil
}

// AfterFind reads timestamps back as UTC.
func (c *LicenseCode) AfterFind(tx *gorm.DB) error {
	return c.BeforeSave(tx)
}

// LicenseGrant is a shared activation key with a single global use. Redeeming it
// activates the redeeming account for DurationDays from the moment of redemption.
type LicenseGrant struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Key          string     `gorm:"column:grant_key;size:64;uniqueIndex;not null" json:"key"`
	IsUsed       bool       `gorm:"not null;index" json:"is_used"`
	DurationDays int        `gorm:"not null;check:chk_license_grants_duration,duration_days > 0" json:"duration_days"`
	UsedBy       *string    `gorm:"type:varchar(36);index" json:"used_by,omitempty"`
	UsedAt       *time.Time `gorm:"precision:6" json:"used_at,omitempty"`
	CreatedAt    time.Time  `gorm:"precision:6;index" json:"created_at"`
}

// TableName pins the table name.
func (LicenseGrant) TableName() string {
	return "license_grants"
}

// NewLicenseGrant returns an unused grant.
func NewLicenseGrant(key string, durationDays int, createdAt time.Time) *LicenseGrant {
	return &LicenseGrant{
		ID:           uuid.NewString(),
		Key:          key,
		DurationDays: durationDays,
		CreatedAt:    createdAt.UTC(),
	}
}

// BeforeSave stores timestamps as UTC.
func (g *LicenseGrant) BeforeSave(tx *gorm.DB) error {
	g.CreatedAt = g.CreatedAt.UTC()
	g.UsedAt = utcPtr(g.UsedAt)
	return nil
}

// AfterFind reads timestamps back as UTC.
func (g *LicenseGrant) AfterFind(tx *gorm.DB) error {
	return g.BeforeSave(tx)
}
