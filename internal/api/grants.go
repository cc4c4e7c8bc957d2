/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/keygate/internal/license"
)

type createGrantRequest struct {
	DurationDays *int `json:"duration_days"`
}

type redeemGrantRequest struct {
	Key      string `json:"key" validate:"required,max=64"`
	Identity string `json:"identity" validate:"required,max=150"`
}

func (a *API) handleGrantsList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	grants, err := a.licenses.ListGrants(r.Context(), license.ListOptions{
		Offset:     offset,
		Limit:      limit,
		OnlyUnused: r.URL.Query().Get("unused") == "true",
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (a *API) handleGrantsCreate(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if !decode(w, r, &req) {
		return
	}

	grant, err := a.licenses.CreateGrant(r.Context(), a.durationOrDefault(req.DurationDays))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleGrantRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemGrantRequest
	if !decode(w, r, &req) {
		return
	}

	expiresAt, err := a.licenses.RedeemGrant(r.Context(), req.Key, req.Identity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionResponse{
		Message:   "license grant redeemed",
		ExpiresAt: expiresAt,
	})
}
