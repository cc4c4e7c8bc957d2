/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders license codes and grants for distribution to
// resellers and operators.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/keygate/internal/models"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts csv, json, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// Record is one exported code or grant.
type Record struct {
	Kind         string     `json:"kind" yaml:"kind"`
	Token        string     `json:"token" yaml:"token"`
	Used         bool       `json:"used" yaml:"used"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	DurationDays int        `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
}

// FromCodes converts license codes to records.
func FromCodes(codes []models.LicenseCode) []Record {
	out := make([]Record, 0, len(codes))
	for _, c := range codes {
		expires := c.ExpiresAt
		out = append(out, Record{
			Kind:      "code",
			Token:     c.Code,
			Used:      c.IsUsed,
			CreatedAt: c.CreatedAt,
			ExpiresAt: &expires,
		})
	}
	return out
}

// FromGrants converts license grants to records.
func FromGrants(grants []models.LicenseGrant) []Record {
	out := make([]Record, 0, len(grants))
	for _, g := range grants {
		out = append(out, Record{
			Kind:         "grant",
			Token:        g.Key,
			Used:         g.IsUsed,
			CreatedAt:    g.CreatedAt,
			DurationDays: g.DurationDays,
		})
	}
	return out
}

var csvHeader = []string{"kind", "token", "used", "created_at", "expires_at", "duration_days"}

// Encode writes records to w in format.
func Encode(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatCSV:
		return encodeCSV(w, records)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func encodeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		expires := ""
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		duration := ""
		if r.DurationDays > 0 {
			duration = strconv.Itoa(r.DurationDays)
		}
		row := []string{
			r.Kind,
			r.Token,
			strconv.FormatBool(r.Used),
			r.CreatedAt.UTC().Format(time.RFC3339),
			expires,
			duration,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ObjectKey names an export object, e.g. "license-codes/20260301T100000Z.csv".
func ObjectKey(prefix string, at time.Time, format Format) string {
	ext := string(format)
	return fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), at.UTC().Format("20060102T150405Z"), ext)
}
