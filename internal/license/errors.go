/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package license

import (
	"errors"
	"fmt"
)

// Status is the result of checking a code or grant without consuming it.
type Status string

const (
	StatusValid       Status = "valid"
	StatusNotFound    Status = "not_found"
	StatusAlreadyUsed Status = "already_used"
	StatusExpired     Status = "expired"
)

// Sentinel errors. Every error returned by Service matches exactly one of
// ErrNotFound, ErrAlreadyUsed, ErrExpired, ErrAccountNotFound, ErrInvalidDuration,
// ErrInvalidCount or ErrPersistence under errors.Is.
var (
	ErrNotFound        = errors.New("license code not found")
	ErrAlreadyUsed     = errors.New("license code already used")
	ErrExpired         = errors.New("license code expired")
	ErrInvalidCode     = errors.New("invalid license code")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidDuration = errors.New("duration must be at least one day")
	ErrInvalidCount    = errors.New("batch size out of range")
	ErrCollision       = errors.New("generated token collided too many times")
	ErrPersistence     = errors.New("license storage failure")
)

// Err returns the sentinel for a non-valid status, or nil for StatusValid.
func (s Status) Err() error {
	switch s {
	case StatusNotFound:
		return ErrNotFound
	case StatusAlreadyUsed:
		return ErrAlreadyUsed
	case StatusExpired:
		return ErrExpired
	default:
		return nil
	}
}

// InvalidCodeError reports a code or grant that cannot be redeemed.
// It matches both ErrInvalidCode and the sentinel for its Status.
type InvalidCodeError struct {
	Status Status
}

func (e *InvalidCodeError) Error() string {
	if err := e.Status.Err(); err != nil {
		return err.Error()
	}
	return ErrInvalidCode.Error()
}

// Is implements errors.Is matching.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode || (target != nil && target == e.Status.Err())
}

// PersistenceError wraps a storage failure. The wrapped error is for logs only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("license %s: %v", e.Op, e.Err)
}

// Is implements errors.Is matching.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StatusOf extracts the Status carried by an InvalidCodeError in err's chain.
func StatusOf(err error) (Status, bool) {
	var invalid *InvalidCodeError
	if errors.As(err, &invalid) {
		return invalid.Status, true
	}
	return "", false
}

// Outcome names the result of a redemption for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return "redeemed"
	}
	if status, ok := StatusOf(err); ok {
		return string(status)
	}
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInvalidCount):
		return "invalid_request"
	default:
		return "error"
	}
}

// txError passes taxonomy errors through and wraps anything else, such as a
// failed commit or a cancelled context, as a persistence failure.
func txError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrPersistence):
		return err
	default:
		return persistence(op, err)
	}
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
