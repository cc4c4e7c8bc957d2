/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "runtime"

// Version is the current version of keygate.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/keygate/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the source revision, set the same way as Version.
var Commit = "unknown"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Current returns the running build's version information.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
}
