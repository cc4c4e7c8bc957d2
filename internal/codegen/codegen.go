/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package codegen produces unpredictable license tokens.
//
// Tokens are drawn from crypto/rand over an uppercase alphanumeric alphabet.
// Uniqueness is not checked here; the storage layer's unique index rejects
// duplicates and callers regenerate.
package codegen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet is the set of characters a token is drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the token length used when none is configured.
const DefaultLength = 16

// MaxLength bounds configured token lengths and user input accepted for lookup.
const MaxLength = 64

// Bytes at or above this value are rejected so every character is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

// Generator returns a fresh token on each call.
type Generator func() (string, error)

// New returns a Generator producing tokens of the given length.
func New(length int) Generator {
	return func() (string, error) {
		return Generate(length)
	}
}

// Generate returns a random token of length characters.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("codegen: invalid length %d", length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("codegen: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Normalize canonicalizes user-entered tokens: surrounding space is dropped and
// letters are uppercased.
func Normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// WellFormed reports whether token is made only of Alphabet characters and
// no longer than MaxLength. It does not check the configured length.
func WellFormed(token string) bool {
	if token == "" || len(token) > MaxLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		if strings.IndexByte(Alphabet, token[i]) < 0 {
			return false
		}
	}
	return true
}
