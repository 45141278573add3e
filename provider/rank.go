// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/medmatch/medmatch/spatial"
	"github.com/medmatch/medmatch/utils/textutils"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the ordering of a ranked list.
type SortKey string

const (
	SortByDistance SortKey = "distance"
	SortByScore    SortKey = "score"
	SortByName     SortKey = "name"
)

// SortKeys lists the accepted sort keys, default first.
var SortKeys = []SortKey{SortByDistance, SortByScore, SortByName}

// ParseSortKey parses a user supplied key. Unknown keys return
// SortByDistance along with an error the caller may report.
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if key == "" {
		return SortByDistance, nil
	}

	if slices.Contains(SortKeys, key) {
		return key, nil
	}

	return SortByDistance, fmt.Errorf("unknown sort key %q, using %s", s, SortByDistance)
}

// Rank computes the distance of every provider from origin and orders them by
// key. Absent distances sort last, unscored providers count as zero and
// names compare case-insensitively with numbers in natural order. The sort
// is stable. providers is not modified.
func Rank(providers []Provider, origin *spatial.Point, key SortKey) []RankedProvider {
	ranked := make([]RankedProvider, len(providers))
	for i, p := range providers {
		ranked[i] = RankedProvider{
			Provider: p,
			Distance: spatial.HaversineMiles(origin, p.Location),
		}
	}

	switch key {
	case SortByScore:
		slices.SortStableFunc(ranked, func(a, b RankedProvider) int {
			return cmp.Compare(b.Score.Rank(), a.Score.Rank())
		})
	case SortByName:
		// collators keep internal buffers, one per call
		c := collate.New(language.English, collate.IgnoreCase, collate.Numeric)
		slices.SortStableFunc(ranked, func(a, b RankedProvider) int {
			return c.CompareString(a.Name, b.Name)
		})
	default:
		slices.SortStableFunc(ranked, func(a, b RankedProvider) int {
			return cmp.Compare(distanceKey(a.Distance), distanceKey(b.Distance))
		})
	}

	return ranked
}

func distanceKey(d *float64) float64 {
	if d == nil {
		return math.Inf(1)
	}

	return *d
}

// Filter keeps the providers whose name, specialty or address contain query,
// ignoring case and accents. An empty query keeps every provider. Order is
// preserved.
func Filter(providers []Provider, query string) []Provider {
	ret := make([]Provider, 0, len(providers))

	for _, p := range providers {
		if textutils.ContainsFolded(query, p.Name, p.Specialty, p.Street, p.City, p.Region, p.PostalCode) {
			ret = append(ret, p)
		}
	}

	return ret
}

// WithinRadius keeps the entries at most miles away. Entries without a
// distance are kept, and a non positive radius keeps everything.
func WithinRadius(ranked []RankedProvider, miles float64) []RankedProvider {
	if miles <= 0 {
		return slices.Clone(ranked)
	}

	ret := make([]RankedProvider, 0, len(ranked))

	for _, r := range ranked {
		if r.Distance == nil || *r.Distance <= miles {
			ret = append(ret, r)
		}
	}

	return ret
}
