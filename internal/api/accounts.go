/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/keygate/internal/session"
)

type credentialsRequest struct {
	Identity string `json:"identity" validate:"required,max=150"`
	Secret   string `json:"secret" validate:"required,max=72"`
}

type signupResponse struct {
	Message   string `json:"message"`
	AccountID string `json:"account_id"`
}

type loginResponse struct {
	Message   string     `json:"message"`
	AccountID string     `json:"account_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Token     string     `json:"token"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	acct, err := a.accounts.Register(r.Context(), req.Identity, req.Secret)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{
		Message:   "account created",
		AccountID: acct.ID,
	})
}

// handleLogin admits active accounts. Inactive ones get 403 with their id so
// the client can offer activation.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := a.sessions.Login(r.Context(), req.Identity, req.Secret)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	switch res.Status {
	case session.StatusActive:
		writeJSON(w, http.StatusOK, loginResponse{
			Message:   "login successful",
			AccountID: res.AccountID,
			ExpiresAt: res.ExpiresAt,
			Token:     res.Token,
		})
	case session.StatusExpired:
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:     "subscription_expired",
			Message:   errorMessages["subscription_expired"],
			AccountID: res.AccountID,
		})
	default:
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:     "activation_required",
			Message:   errorMessages["activation_required"],
			AccountID: res.AccountID,
		})
	}
}
