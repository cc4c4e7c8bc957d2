/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a registered user whose application access is gated by a license.
// Active with a nil Expiration means access without a time bound.
type Account struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Identity       string     `gorm:"size:150;uniqueIndex;not null" json:"identity"`
	CredentialHash string     `gorm:"size:255;not null" json:"-"`
	Active         bool       `gorm:"not null;index" json:"active"`
	Expiration     *time.Time `gorm:"precision:6" json:"expiration,omitempty"`
	CreatedAt      time.Time  `gorm:"precision:6" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"precision:6" json:"updated_at"`
}

// TableName pins the table name.
func (Account) TableName() string {
	return "accounts"
}

// NewAccount returns an inactive account with no expiration.
func NewAccount(identity, credentialHash string) *Account {
	return &Account{
		ID:             uuid.NewString(),
		Identity:       NormalizeIdentity(identity),
		CredentialHash: credentialHash,
	}
}

// NormalizeIdentity trims surrounding whitespace. Identities stay case-sensitive.
func NormalizeIdentity(identity string) string {
	return strings.TrimSpace(identity)
}

// TimeBound reports whether the account's access ends at Expiration.
func (a *Account) TimeBound() bool {
	return a.Active && a.Expiration != nil
}

// BeforeSave stores timestamps as UTC.
func (a *Account) BeforeSave(tx *gorm.DB) error {
	a.Expiration = utcPtr(a.Expiration)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return nil
}

// AfterFind reads timestamps back as UTC regardless of driver session zone.
func (a *Account) AfterFind(tx *gorm.DB) error {
	return a.BeforeSave(tx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
