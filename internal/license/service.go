/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package license owns the lifecycle of license codes and grants: creation,
// validation and the atomic redemption that activates an account.
package license

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/keygate/internal/clock"
	"github.com/friendsincode/keygate/internal/codegen"
	"github.com/friendsincode/keygate/internal/config"
	"github.com/friendsincode/keygate/internal/db"
	"github.com/friendsincode/keygate/internal/events"
	"github.com/friendsincode/keygate/internal/models"
	"github.com/friendsincode/keygate/internal/telemetry"
)

const tracerName = "keygate/license"

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Config tunes code generation.
type Config struct {
	CodeLength          int
	MaxGenerateAttempts int
	MaxBatchSize        int
}

// ConfigFrom extracts the license settings from process configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		CodeLength:          cfg.CodeLength,
		MaxGenerateAttempts: cfg.MaxGenerateAttempts,
		MaxBatchSize:        cfg.MaxBatchSize,
	}
}

// Validation is the advisory result of Validate. ExpiresAt is set for valid and expired codes.
type Validation struct {
	Status    Status     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the code could be activated at the time of the check.
func (v Validation) Valid() bool {
	return v.Status == StatusValid
}

// ListOptions pages through codes or grants, newest first.
type ListOptions struct {
	Offset     int
	Limit      int
	OnlyUnused bool
}

func (o ListOptions) apply(tx *gorm.DB) *gorm.DB {
	limit := o.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := o.Offset
	if offset < 0 {
		offset = 0
	}
	if o.OnlyUnused {
		tx = tx.Where("is_used = ?", false)
	}
	return tx.Order("created_at DESC").Order("id").Offset(offset).Limit(limit)
}

// Service is the license lifecycle manager. All state lives in the database;
// nothing about codes or accounts is cached between calls.
type Service struct {
	db       *gorm.DB
	cfg      Config
	clock    clock.Clock
	generate codegen.Generator
	events   events.Publisher
	logger   zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithGenerator replaces the token generator.
func WithGenerator(g codegen.Generator) Option {
	return func(s *Service) { s.generate = g }
}

// WithPublisher sets where domain events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates a license service.
func NewService(database *gorm.DB, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = codegen.DefaultLength
	}
	if cfg.MaxGenerateAttempts <= 0 {
		cfg.MaxGenerateAttempts = 5
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	s := &Service{
		db:       database,
		cfg:      cfg,
		clock:    clock.System{},
		generate: codegen.New(cfg.CodeLength),
		events:   events.Nop{},
		logger:   logger.With().Str("component", "license").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new unused code valid for durationDays from now.
func (s *Service) Create(ctx context.Context, durationDays int) (*models.LicenseCode, error) {
	codes, err := s.CreateBatch(ctx, 1, durationDays)
	if err != nil {
		return nil, err
	}
	return &codes[0], nil
}

// CreateBatch persists count codes sharing one creation time. Either every
// code is stored or none is.
func (s *Service) CreateBatch(ctx context.Context, count, durationDays int) (_ []models.LicenseCode, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "license.CreateBatch",
		attribute.Int("count", count), attribute.Int("duration_days", durationDays))
	defer func() { telemetry.EndSpan(span, unexpected(err)) }()

	if durationDays <= 0 {
		return nil, ErrInvalidDuration
	}
	if count <= 0 || count > s.cfg.MaxBatchSize {
		return nil, ErrInvalidCount
	}

	now := s.clock.Now()
	duration := clock.Days(durationDays)
	codes := make([]models.LicenseCode, 0, count)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			var code *models.LicenseCode
			err := s.insertUnique(tx, "code", func(token string) any {
				code = models.NewLicenseCode(token, now, duration)
				return code
			})
			if err != nil {
				return err
			}
			codes = append(codes, *code)
		}
		return nil
	})
	if err != nil {
		err = txError("create codes", err)
		s.logger.Error().Err(err).Int("count", count).Msg("license code creation failed")
		return nil, err
	}

	telemetry.LicensesCreatedTotal.WithLabelValues("code").Add(float64(len(codes)))
	s.logger.Info().Int("count", len(codes)).Int("duration_days", durationDays).Msg("license codes created")
	s.events.Publish(events.EventLicenseCreated, events.Payload{
		"count":         len(codes),
		"duration_days": durationDays,
		"expires_at":    codes[0].ExpiresAt,
	})
	return codes, nil
}

// insertUnique generates a token, builds a record from it and inserts it,
// regenerating on unique violations. Each attempt runs in a savepoint so a
// collision does not abort an enclosing transaction.
func (s *Service) insertUnique(tx *gorm.DB, kind string, build func(token string) any) error {
	for attempt := 1; attempt <= s.cfg.MaxGenerateAttempts; attempt++ {
		token, err := s.generate()
		if err != nil {
			return persistence("generate "+kind, err)
		}
		record := build(token)
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(record).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return persistence("insert "+kind, err)
		}
		telemetry.LicenseCollisionsTotal.WithLabelValues(kind).Inc()
		s.logger.Warn().Str("kind", kind).Int("attempt", attempt).Msg("generated token collided, regenerating")
	}
	return persistence("insert "+kind, ErrCollision)
}

// List returns codes newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.LicenseCode, error) {
	var codes []models.LicenseCode
	if err := opts.apply(s.db.WithContext(ctx)).Find(&codes).Error; err != nil {
		return nil, persistence("list codes", err)
	}
	return codes, nil
}

// Validate reports whether code could be activated now. It never mutates
// state and its answer is not a reservation.
func (s *Service) Validate(ctx context.Context, code string) (_ Validation, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "license.Validate")
	defer func() { telemetry.EndSpan(span, err) }()

	code = codegen.Normalize(code)
	if !codegen.WellFormed(code) {
		telemetry.LicenseValidationsTotal.WithLabelValues(string(StatusNotFound)).Inc()
		return Validation{Status: StatusNotFound}, nil
	}

	var rec models.LicenseCode
	err = s.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		telemetry.LicenseValidationsTotal.WithLabelValues(string(StatusNotFound)).Inc()
		return Validation{Status: StatusNotFound}, nil
	}
	if err != nil {
		return Validation{}, persistence("load code", err)
	}

	v := classifyCode(&rec, s.clock.Now())
	telemetry.LicenseValidationsTotal.WithLabelValues(string(v.Status)).Inc()
	span.SetAttributes(attribute.String("license.status", string(v.Status)))
	return v, nil
}

func classifyCode(rec *models.LicenseCode, now time.Time) Validation {
	switch {
	case rec.IsUsed:
		return Validation{Status: StatusAlreadyUsed}
	case rec.ExpiredAt(now):
		exp := rec.ExpiresAt
		return Validation{Status: StatusExpired, ExpiresAt: &exp}
	default:
		exp := rec.ExpiresAt
		return Validation{Status: StatusValid, ExpiresAt: &exp}
	}
}

// Activate redeems code for accountID. In one transaction it marks the code
// used by the account and sets the account active until the code's expiry.
// Of several concurrent calls on one code exactly one succeeds; the others
// get an InvalidCodeError with StatusAlreadyUsed.
func (s *Service) Activate(ctx context.Context, code, accountID string) (_ time.Time, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "license.Activate",
		attribute.String("account.id", accountID))
	defer func() {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("license.outcome", outcome))
		telemetry.LicenseRedemptionsTotal.WithLabelValues("code", outcome).Inc()
		telemetry.EndSpan(span, unexpected(err))
	}()

	code = codegen.Normalize(code)
	if !codegen.WellFormed(code) {
		return time.Time{}, &InvalidCodeError{Status: StatusNotFound}
	}
	var rec models.LicenseCode

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		if err := lockingRead(tx).Where("code = ?", code).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &InvalidCodeError{Status: StatusNotFound}
			}
			return persistence("load code", err)
		}
		if v := classifyCode(&rec, now); !v.Valid() {
			return &InvalidCodeError{Status: v.Status}
		}

		if err := requireAccount(tx, "id = ?", accountID); err != nil {
			return err
		}

		res := tx.Model(&models.LicenseCode{}).
			Where("id = ? AND is_used = ? AND expires_at >= ?", rec.ID, false, now).
			Updates(map[string]any{"is_used": true, "used_by": accountID, "used_at": now})
		if res.Error != nil {
			return persistence("mark code used", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.lostCodeRace(tx, rec.ID, now)
		}

		return activateAccount(tx, "id = ?", accountID, rec.ExpiresAt)
	})
	if err = txError("activate code", err); err != nil {
		if errors.Is(err, ErrPersistence) {
			s.logger.Error().Err(err).Str("account_id", accountID).Msg("license activation failed")
		}
		return time.Time{}, err
	}

	s.logger.Info().Str("account_id", accountID).Time("expires_at", rec.ExpiresAt).Msg("license code activated")
	s.events.Publish(events.EventLicenseActivated, events.Payload{
		"account_id": accountID,
		"code_id":    rec.ID,
		"expires_at": rec.ExpiresAt,
	})
	return rec.ExpiresAt, nil
}

// lostCodeRace classifies a code whose compare-and-set matched no row.
func (s *Service) lostCodeRace(tx *gorm.DB, id string, now time.Time) error {
	var rec models.LicenseCode
	if err := lockingRead(tx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &InvalidCodeError{Status: StatusNotFound}
		}
		return persistence("reload code", err)
	}
	if v := classifyCode(&rec, now); !v.Valid() {
		return &InvalidCodeError{Status: v.Status}
	}
	return persistence("mark code used", errors.New("compare-and-set matched no row for a valid code"))
}

// lockingRead holds row locks until commit on backends that support them.
// Where they don't, the is_used compare-and-set decides races.
func lockingRead(tx *gorm.DB) *gorm.DB {
	if db.SupportsRowLocks(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// requireAccount locks the account row so it cannot vanish before activateAccount.
func requireAccount(tx *gorm.DB, query string, arg any) error {
	var acct models.Account
	err := lockingRead(tx).Select("id").Where(query, arg).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return persistence("load account", err)
	}
	return nil
}

// activateAccount sets the matched account active until expiresAt. MySQL
// counts changed rows, not matched ones, so a zero there is not a miss; the
// locked read in requireAccount covers that backend.
func activateAccount(tx *gorm.DB, query string, arg any, expiresAt time.Time) error {
	res := tx.Model(&models.Account{}).Where(query, arg).
		Updates(map[string]any{"active": true, "expiration": expiresAt.UTC()})
	if res.Error != nil {
		return persistence("activate account", res.Error)
	}
	if res.RowsAffected == 0 && tx.Dialector.Name() != "mysql" {
		return ErrAccountNotFound
	}
	return nil
}

// unexpected filters out business outcomes so spans only record real failures.
func unexpected(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrPersistence):
		return err
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInvalidCount):
		return nil
	default:
		return err
	}
}
