/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package account registers accounts and verifies their credentials.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/keygate/internal/auth"
	"github.com/friendsincode/keygate/internal/events"
	"github.com/friendsincode/keygate/internal/models"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrIdentityTaken      = errors.New("identity already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidIdentity    = errors.New("identity must not be empty")
)

// Service manages accounts.
type Service struct {
	db     *gorm.DB
	events events.Publisher
	logger zerolog.Logger
}

// NewService creates an account service. A nil publisher discards events.
func NewService(db *gorm.DB, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:     db,
		events: publisher,
		logger: logger.With().Str("component", "account").Logger(),
	}
}

// Register creates an inactive account with no expiration.
func (s *Service) Register(ctx context.Context, identity, secret string) (*models.Account, error) {
	identity = models.NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	digest, err := auth.HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	acct := models.NewAccount(identity, digest)
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrIdentityTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().Str("account_id", acct.ID).Msg("account registered")
	s.events.Publish(events.EventAccountRegistered, events.Payload{
		"account_id": acct.ID,
	})
	return acct, nil
}

// Authenticate returns the account whose credentials match. Unknown identities
// and wrong secrets are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, identity, secret string) (models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Where("identity = ?", models.NormalizeIdentity(identity)).Take(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			auth.BurnVerify(secret)
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}

	if !auth.VerifySecret(secret, acct.CredentialHash) {
		return models.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id string) (models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}
