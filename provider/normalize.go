// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/medmatch/medmatch/spatial"
)

// ErrMalformedRecord is matched by every error returned for a record whose
// coordinates cannot be used.
var ErrMalformedRecord = errors.New("malformed provider record")

// MalformedRecordError describes a rejected record.
type MalformedRecordError struct {
	Index  int
	Name   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: record %d (%q): %s", ErrMalformedRecord, e.Index, e.Name, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedRecord) hold.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// parseCoordinate accepts JSON numbers and numeric strings.
func parseCoordinate(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing")
	}

	var v float64

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("decoding %s: %w", raw, err)
		}

		s = strings.TrimSpace(s)
		if s == "" {
			return 0, errors.New("missing")
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}

		v = f
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}

	return v, nil
}

// Normalize converts a backend record into a Provider. index is the
// record's position in the response and names it in errors. Records whose
// coordinates are missing or not numeric fail with ErrMalformedRecord.
func Normalize(raw RawRecord, index int) (Provider, error) {
	lat, err := parseCoordinate(raw.Lat)
	if err != nil {
		return Provider{}, &MalformedRecordError{Index: index, Name: raw.Name, Reason: "lat " + err.Error()}
	}

	lng, err := parseCoordinate(raw.Lng)
	if err != nil {
		return Provider{}, &MalformedRecordError{Index: index, Name: raw.Name, Reason: "lng " + err.Error()}
	}

	p := Provider{
		ID:       strings.TrimSpace(string(raw.ID)),
		Name:     strings.TrimSpace(raw.Name),
		Phone:    CleanPhone(raw.Phone),
		Address:  ParseAddress(CleanAddress(raw.Address)),
		Location: spatial.NewPoint(lat, lng),
		Source:   raw.Source,
	}

	if raw.Specialty != nil {
		p.Specialty = strings.TrimSpace(*raw.Specialty)
	}

	if raw.Score != nil {
		p.Score = NewScore(*raw.Score)
	}

	return p, nil
}

// NormalizeAll normalizes every record of a search response. Malformed
// records are left out of providers and reported in rejected. Every returned
// provider has an id unique within the result: missing ids are synthesized
// from the 1-based position and duplicates get a "-<position>" suffix.
func NormalizeAll(raws []RawRecord) (providers []Provider, rejected []error) {
	providers = make([]Provider, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))

	for i, raw := range raws {
		p, err := Normalize(raw, i)
		if err != nil {
			rejected = append(rejected, err)

			continue
		}

		ordinal := strconv.Itoa(i + 1)
		if p.ID == "" {
			p.ID = ordinal
		}

		id := p.ID
		for n := 1; ; n++ {
			if _, dup := seen[p.ID]; !dup {
				break
			}

			if n == 1 {
				p.ID = id + "-" + ordinal
			} else {
				p.ID = fmt.Sprintf("%s-%s-%d", id, ordinal, n)
			}
		}

		seen[p.ID] = struct{}{}
		providers = append(providers, p)
	}

	return providers, rejected
}
