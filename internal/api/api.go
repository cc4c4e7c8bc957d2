/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/keygate/internal/account"
	"github.com/friendsincode/keygate/internal/auth"
	"github.com/friendsincode/keygate/internal/license"
	"github.com/friendsincode/keygate/internal/ratelimit"
	"github.com/friendsincode/keygate/internal/session"
)

// API exposes HTTP handlers.
type API struct {
	licenses            *license.Service
	accounts            *account.Service
	sessions            *session.Gate
	limiter             *ratelimit.Limiter
	jwtSecret           []byte
	defaultDurationDays int
	logger              zerolog.Logger
}

// New creates the API router wrapper. A nil limiter disables attempt throttling.
func New(licenses *license.Service, accounts *account.Service, sessions *session.Gate, limiter *ratelimit.Limiter, jwtSecret []byte, defaultDurationDays int, logger zerolog.Logger) *API {
	return &API{
		licenses:            licenses,
		accounts:            accounts,
		sessions:            sessions,
		limiter:             limiter,
		jwtSecret:           jwtSecret,
		defaultDurationDays: defaultDurationDays,
		logger:              logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers the /api/v1 routes on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.limit("signup")).Post("/accounts", a.handleSignup)
		r.With(a.limit("login")).Post("/sessions", a.handleLogin)

		r.Route("/licenses", func(r chi.Router) {
			r.With(a.limit("validate")).Get("/{code}", a.handleLicenseValidate)
			r.With(a.limit("activate")).Post("/{code}/activate", a.handleLicenseActivate)

			r.Group(func(r chi.Router) {
				r.Use(a.operatorOnly()...)
				r.Get("/", a.handleLicensesList)
				r.Post("/", a.handleLicensesCreate)
				r.Post("/batch", a.handleLicensesBatch)
			})
		})

		r.Route("/grants", func(r chi.Router) {
			r.With(a.limit("redeem")).Post("/redeem", a.handleGrantRedeem)

			r.Group(func(r chi.Router) {
				r.Use(a.operatorOnly()...)
				r.Get("/", a.handleGrantsList)
				r.Post("/", a.handleGrantsCreate)
			})
		})
	})
}

func (a *API) operatorOnly() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		auth.Middleware(a.jwtSecret),
		auth.RequireRole(auth.RoleOperator),
	}
}

func (a *API) limit(scope string) func(http.Handler) http.Handler {
	if a.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return a.limiter.Middleware(scope)
}
