/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session decides at login whether an account may enter, and
// deactivates accounts whose expiration has passed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/keygate/internal/account"
	"github.com/friendsincode/keygate/internal/auth"
	"github.com/friendsincode/keygate/internal/clock"
	"github.com/friendsincode/keygate/internal/events"
	"github.com/friendsincode/keygate/internal/models"
	"github.com/friendsincode/keygate/internal/telemetry"
)

const tracerName = "keygate/session"

// settleAttempts bounds re-reads when the account changes between the
// correction attempt and the follow-up read.
const settleAttempts = 3

// Status is the login decision.
type Status string

const (
	// StatusActive admits the account.
	StatusActive Status = "active"
	// StatusNeedsActivation means the account was never activated or expired earlier.
	StatusNeedsActivation Status = "needs_activation"
	// StatusExpired means this login found the expiration passed and deactivated the account.
	StatusExpired Status = "expired"
)

// LoginResult is returned for every authenticated login.
type LoginResult struct {
	Status    Status     `json:"status"`
	AccountID string     `json:"account_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Token     string     `json:"token,omitempty"`
}

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, identity, secret string) (models.Account, error)
}

// Evaluate applies lazy expiry to acct as of now. It returns the corrected
// account and true when an active account's expiration lies before now.
// An active account without expiration never expires.
func Evaluate(acct models.Account, now time.Time) (models.Account, bool) {
	if !acct.Active || acct.Expiration == nil || !acct.Expiration.Before(now) {
		return acct, false
	}
	acct.Active = false
	acct.Expiration = nil
	return acct, true
}

// Config holds token settings for admitted sessions.
type Config struct {
	SigningKey []byte
	TokenTTL   time.Duration
}

// Gate evaluates accounts at login.
type Gate struct {
	db       *gorm.DB
	accounts Authenticator
	cfg      Config
	clock    clock.Clock
	events   events.Publisher
	logger   zerolog.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithPublisher sets where account.expired events go.
func WithPublisher(p events.Publisher) Option {
	return func(g *Gate) { g.events = p }
}

// NewGate creates a session gate.
func NewGate(db *gorm.DB, accounts Authenticator, cfg Config, logger zerolog.Logger, opts ...Option) *Gate {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	g := &Gate{
		db:       db,
		accounts: accounts,
		cfg:      cfg,
		clock:    clock.System{},
		events:   events.Nop{},
		logger:   logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Login authenticates identity and classifies the account. Credential failures
// return account.ErrInvalidCredentials. A token is issued only for StatusActive.
func (g *Gate) Login(ctx context.Context, identity, secret string) (_ LoginResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "session.Login")
	var result LoginResult
	defer func() {
		outcome, spanErr := string(result.Status), err
		switch {
		case errors.Is(err, account.ErrInvalidCredentials):
			outcome, spanErr = "invalid_credentials", nil
		case err != nil:
			outcome = "error"
		}
		span.SetAttributes(attribute.String("session.outcome", outcome))
		telemetry.EndSpan(span, spanErr)
		telemetry.LoginsTotal.WithLabelValues(outcome).Inc()
	}()

	acct, err := g.accounts.Authenticate(ctx, identity, secret)
	if err != nil {
		return LoginResult{}, err
	}

	result, err = g.settle(ctx, acct)
	if err != nil {
		g.logger.Error().Err(err).Str("account_id", acct.ID).Msg("session evaluation failed")
		return LoginResult{}, err
	}

	if result.Status == StatusActive {
		result.Token, err = g.issue(result)
		if err != nil {
			g.logger.Error().Err(err).Str("account_id", acct.ID).Msg("session token signing failed")
			return LoginResult{}, err
		}
	}
	return result, nil
}

// settle applies Evaluate and persists a correction with a conditional update,
// so concurrent logins of the same expired account correct it exactly once.
func (g *Gate) settle(ctx context.Context, acct models.Account) (LoginResult, error) {
	tx := g.db.WithContext(ctx)

	for range settleAttempts {
		now := g.clock.Now()
		if _, corrected := Evaluate(acct, now); !corrected {
			return classify(acct), nil
		}

		res := tx.Model(&models.Account{}).
			Where("id = ? AND active = ? AND expiration IS NOT NULL AND expiration < ?", acct.ID, true, now).
			Updates(map[string]any{"active": false, "expiration": nil})
		if res.Error != nil {
			return LoginResult{}, fmt.Errorf("deactivate account: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			telemetry.LazyExpiriesTotal.Inc()
			g.logger.Info().Str("account_id", acct.ID).Time("expired_at", *acct.Expiration).Msg("account expired")
			g.events.Publish(events.EventAccountExpired, events.Payload{
				"account_id": acct.ID,
				"expired_at": *acct.Expiration,
			})
			return LoginResult{Status: StatusExpired, AccountID: acct.ID}, nil
		}

		// Someone else corrected or reactivated the account; decide on fresh state.
		var fresh models.Account
		if err := tx.Where("id = ?", acct.ID).Take(&fresh).Error; err != nil {
			return LoginResult{}, fmt.Errorf("reload account: %w", err)
		}
		acct = fresh
	}
	return LoginResult{}, fmt.Errorf("account %s changed during evaluation", acct.ID)
}

func classify(acct models.Account) LoginResult {
	if !acct.Active {
		return LoginResult{Status: StatusNeedsActivation, AccountID: acct.ID}
	}
	return LoginResult{Status: StatusActive, AccountID: acct.ID, ExpiresAt: acct.Expiration}
}

// issue signs a session token that never outlives the account's expiration.
func (g *Gate) issue(result LoginResult) (string, error) {
	ttl := g.cfg.TokenTTL
	if result.ExpiresAt != nil {
		if remaining := result.ExpiresAt.Sub(g.clock.Now()); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	return auth.Issue(g.cfg.SigningKey, auth.Claims{
		AccountID: result.AccountID,
		Roles:     []string{auth.RoleAccount},
	}, ttl)
}
