/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/keygate/internal/license"
)

type createLicenseRequest struct {
	// Omitted means the configured default duration.
	DurationDays *int `json:"duration_days"`
}

type batchLicenseRequest struct {
	Count        int  `json:"count" validate:"required"`
	DurationDays *int `json:"duration_days"`
}

type activateRequest struct {
	AccountID string `json:"account_id" validate:"required,max=36"`
}

type redemptionResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) durationOrDefault(days *int) int {
	if days == nil {
		return a.defaultDurationDays
	}
	return *days
}

func (a *API) handleLicensesList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	codes, err := a.licenses.List(r.Context(), license.ListOptions{
		Offset:     offset,
		Limit:      limit,
		OnlyUnused: r.URL.Query().Get("unused") == "true",
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (a *API) handleLicensesCreate(w http.ResponseWriter, r *http.Request) {
	var req createLicenseRequest
	if !decode(w, r, &req) {
		return
	}

	code, err := a.licenses.Create(r.Context(), a.durationOrDefault(req.DurationDays))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (a *API) handleLicensesBatch(w http.ResponseWriter, r *http.Request) {
	var req batchLicenseRequest
	if !decode(w, r, &req) {
		return
	}

	codes, err := a.licenses.CreateBatch(r.Context(), req.Count, a.durationOrDefault(req.DurationDays))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, codes)
}

// handleLicenseValidate answers whether a code could be activated now. A
// non-valid code is reported with the same error as a failed activation.
func (a *API) handleLicenseValidate(w http.ResponseWriter, r *http.Request) {
	v, err := a.licenses.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !v.Valid() {
		a.writeServiceError(w, r, v.Status.Err())
		return
	}
	writeJSON(w, http.StatusOK, redemptionResponse{
		Message:   "license code is valid",
		ExpiresAt: *v.ExpiresAt,
	})
}

func (a *API) handleLicenseActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decode(w, r, &req) {
		return
	}

	expiresAt, err := a.licenses.Activate(r.Context(), chi.URLParam(r, "code"), req.AccountID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionResponse{
		Message:   "account activated",
		ExpiresAt: expiresAt,
	})
}
