// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider turns backend search results into canonical care providers
// and ranks them around an origin.
package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/medmatch/medmatch/spatial"
)

// RawRecord is a provider record as the backend reports it. Coordinates are
// kept raw because the scraper behind the backend emits nulls and free text
// when geocoding fails.
type RawRecord struct {
	ID        RecordID        `json:"id,omitempty"`
	Name      string          `json:"name"`
	Specialty *string         `json:"specialty,omitempty"`
	Address   string          `json:"address"`
	Phone     *string         `json:"phone,omitempty"`
	Lat       json.RawMessage `json:"lat,omitempty"`
	Lng       json.RawMessage `json:"lng,omitempty"`
	Source    string          `json:"source_file,omitempty"`
	Score     *float64        `json:"medmatch_score,omitempty"`
}

// RecordID is a backend record id, sent either as a JSON string or number.
type RecordID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""

		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = RecordID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}

	*id = RecordID(n.String())

	return nil
}

// Score is a relevance score in [1,10]. The zero value is Unscored, which
// is what every provider gets until the backend computes real scores.
type Score uint8

const (
	// Unscored marks a provider without a computed relevance score.
	Unscored Score = 0

	MinScore Score = 1
	MaxScore Score = 10
)

// NewScore rounds v and clamps it into [MinScore, MaxScore]. Non-finite
// values are Unscored.
func NewScore(v float64) Score {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unscored
	}

	r := math.Round(v)
	switch {
	case r < float64(MinScore):
		return MinScore
	case r > float64(MaxScore):
		return MaxScore
	default:
		return Score(r)
	}
}

// Scored reports whether s holds a real score.
func (s Score) Scored() bool {
	return s != Unscored
}

// Rank returns the value used for ordering, unscored counting as zero.
func (s Score) Rank() int {
	return int(s)
}

// String returns the score or a dash when unscored.
func (s Score) String() string {
	if !s.Scored() {
		return "-"
	}

	return strconv.Itoa(int(s))
}

// MarshalJSON encodes Unscored as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Scored() {
		return []byte("null"), nil
	}

	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON decodes null as Unscored and numbers through NewScore.
func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Unscored

		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*s = NewScore(v)

	return nil
}

// Address is a decomposed postal address. Unparseable parts are empty.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
}

// Provider is the canonical, backend independent representation of a care
// provider.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	Phone     string `json:"phone"`
	Address
	Location *spatial.Point `json:"location,omitempty"`
	Score    Score          `json:"score"`
	Source   string         `json:"source,omitempty"`
}

// RankedProvider is a Provider with its distance, in miles, from the origin
// used for ranking. Distance is nil when no distance could be computed.
type RankedProvider struct {
	Provider
	Distance *float64 `json:"distance_miles"`
}
