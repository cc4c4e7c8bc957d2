/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretTooLong is returned for secrets bcrypt would silently truncate.
var ErrSecretTooLong = errors.New("secret exceeds 72 bytes")

// HashSecret returns a bcrypt digest of secret.
func HashSecret(secret string) (string, error) {
	if len(secret) > 72 {
		return "", ErrSecretTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifySecret reports whether secret matches digest.
func VerifySecret(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// dummyDigest is compared against when an identity is unknown so lookups of
// missing and existing accounts take similar time.
var dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("keygate-timing-equalizer"), bcrypt.DefaultCost)

// BurnVerify spends the same work as a failed VerifySecret.
func BurnVerify(secret string) {
	_ = bcrypt.CompareHashAndPassword(dummyDigest, []byte(secret))
}
