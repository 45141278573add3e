// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves postal codes, free text locations and the device
// position into the origin searches are ranked from.
package geocode

import (
	"context"
	"regexp"
	"strings"

	"github.com/medmatch/medmatch/spatial"
)

// Confidence levels reported by providers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Result is a geocoded location.
type Result struct {
	Location    spatial.Point
	City        string
	Region      string
	PostalCode  string
	DisplayName string
	Confidence  string
	Provider    string
}

// Geocoder resolves a query into a location.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

var zipRegex = regexp.MustCompile(`^\d{5}$`)

// PostalCode returns the 5 digit ZIP in query, accepting ZIP+4, or "".
func PostalCode(query string) string {
	q := strings.TrimSpace(query)
	if len(q) == len("12345-6789") && q[5] == '-' {
		q = q[:5]
	}

	if !zipRegex.MatchString(q) {
		return ""
	}

	return q
}
