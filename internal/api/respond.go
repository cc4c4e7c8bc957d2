/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/friendsincode/keygate/internal/account"
	"github.com/friendsincode/keygate/internal/auth"
	"github.com/friendsincode/keygate/internal/license"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	AccountID string `json:"account_id,omitempty"`
}

var errorMessages = map[string]string{
	"invalid_request":      "request is invalid",
	"code_not_found":       "license code not found",
	"code_already_used":    "license code already used",
	"code_expired":         "license code expired",
	"account_not_found":    "account not found",
	"invalid_duration":     "duration must be at least one day",
	"invalid_credentials":  "invalid identity or secret",
	"activation_required":  "account requires activation",
	"subscription_expired": "subscription expired, activation required",
	"identity_taken":       "identity already registered",
	"internal_error":       "internal error",
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeErrorMessage(w, status, code, errorMessages[code])
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeServiceError maps the license and account error taxonomy onto HTTP.
// Anything unrecognized is logged and reported as internal_error.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, license.ErrNotFound):
		writeError(w, http.StatusNotFound, "code_not_found")
	case errors.Is(err, license.ErrAlreadyUsed):
		writeError(w, http.StatusConflict, "code_already_used")
	case errors.Is(err, license.ErrExpired):
		writeError(w, http.StatusBadRequest, "code_expired")
	case errors.Is(err, license.ErrAccountNotFound), errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, license.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration")
	case errors.Is(err, license.ErrInvalidCount):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, account.ErrIdentityTaken):
		writeError(w, http.StatusConflict, "identity_taken")
	case errors.Is(err, account.ErrInvalidIdentity), errors.Is(err, auth.ErrSecretTooLong):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		a.logger.Error().Err(err).Str("method", r.Method).Str("route", routePattern(r)).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
