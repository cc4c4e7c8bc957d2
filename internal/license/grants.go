/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package license

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/keygate/internal/clock"
	"github.com/friendsincode/keygate/internal/codegen"
	"github.com/friendsincode/keygate/internal/events"
	"github.com/friendsincode/keygate/internal/models"
	"github.com/friendsincode/keygate/internal/telemetry"
)

// CreateGrant persists a new unused grant worth durationDays of access.
func (s *Service) CreateGrant(ctx context.Context, durationDays int) (_ *models.LicenseGrant, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "license.CreateGrant",
		attribute.Int("duration_days", durationDays))
	defer func() { telemetry.EndSpan(span, unexpected(err)) }()

	if durationDays <= 0 {
		return nil, ErrInvalidDuration
	}

	now := s.clock.Now()
	var grant *models.LicenseGrant
	err = s.insertUnique(s.db.WithContext(ctx), "grant", func(token string) any {
		grant = models.NewLicenseGrant(token, durationDays, now)
		return grant
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("license grant creation failed")
		return nil, err
	}

	telemetry.LicensesCreatedTotal.WithLabelValues("grant").Inc()
	s.logger.Info().Str("grant_id", grant.ID).Int("duration_days", durationDays).Msg("license grant created")
	s.events.Publish(events.EventGrantCreated, events.Payload{
		"grant_id":      grant.ID,
		"duration_days": durationDays,
	})
	return grant, nil
}

// ListGrants returns grants newest first.
func (s *Service) ListGrants(ctx context.Context, opts ListOptions) ([]models.LicenseGrant, error) {
	var grants []models.LicenseGrant
	if err := opts.apply(s.db.WithContext(ctx)).Find(&grants).Error; err != nil {
		return nil, persistence("list grants", err)
	}
	return grants, nil
}

// RedeemGrant consumes the grant with the given key for the account with the
// given identity. The account becomes active for the grant's duration counted
// from now. A grant is redeemable once in total, not once per account.
func (s *Service) RedeemGrant(ctx context.Context, key, identity string) (_ time.Time, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "license.RedeemGrant")
	defer func() {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("license.outcome", outcome))
		telemetry.LicenseRedemptionsTotal.WithLabelValues("grant", outcome).Inc()
		telemetry.EndSpan(span, unexpected(err))
	}()

	key = codegen.Normalize(key)
	if !codegen.WellFormed(key) {
		return time.Time{}, &InvalidCodeError{Status: StatusNotFound}
	}
	identity = models.NormalizeIdentity(identity)
	var (
		grant     models.LicenseGrant
		expiresAt time.Time
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		if err := lockingRead(tx).Where("grant_key = ?", key).Take(&grant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &InvalidCodeError{Status: StatusNotFound}
			}
			return persistence("load grant", err)
		}
		if grant.IsUsed {
			return &InvalidCodeError{Status: StatusAlreadyUsed}
		}

		var acct models.Account
		if err := lockingRead(tx).Select("id").Where("identity = ?", identity).Take(&acct).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return persistence("load account", err)
		}

		res := tx.Model(&models.LicenseGrant{}).
			Where("id = ? AND is_used = ?", grant.ID, false).
			Updates(map[string]any{"is_used": true, "used_by": acct.ID, "used_at": now})
		if res.Error != nil {
			return persistence("mark grant used", res.Error)
		}
		if res.RowsAffected == 0 {
			return &InvalidCodeError{Status: StatusAlreadyUsed}
		}

		expiresAt = now.Add(clock.Days(grant.DurationDays))
		grant.UsedBy = &acct.ID
		return activateAccount(tx, "id = ?", acct.ID, expiresAt)
	})
	if err = txError("redeem grant", err); err != nil {
		if errors.Is(err, ErrPersistence) {
			s.logger.Error().Err(err).Msg("license grant redemption failed")
		}
		return time.Time{}, err
	}

	s.logger.Info().Str("account_id", *grant.UsedBy).Time("expires_at", expiresAt).Msg("license grant redeemed")
	s.events.Publish(events.EventGrantRedeemed, events.Payload{
		"account_id": *grant.UsedBy,
		"grant_id":   grant.ID,
		"expires_at": expiresAt,
	})
	return expiresAt, nil
}
