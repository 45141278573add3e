// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"encoding/json"
	"strconv"

	"github.com/medmatch/medmatch/provider"
)

func str(s string) *string {
	return &s
}

func coord(v float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
}

func score(v float64) *float64 {
	return &v
}

// MockProviders returns the records served by the dev server, shaped the way
// the directory scraper behind the real backend reports them: labelled
// phones, distance suffixes on addresses and a record whose geocoding
// failed.
func MockProviders() []provider.RawRecord {
	return []provider.RawRecord{
		{
			ID:        "1",
			Name:      "Dr. Alicia Patel, MD",
			Specialty: str("Primary Care"),
			Address:   "123 Main St, Austin, TX 78701",
			Phone:     str("Call (512) 555-0143"),
			Lat:       coord(30.2715),
			Lng:       coord(-97.7426),
			Source:    "mock",
			Score:     score(9),
		},
		{
			ID:        "2",
			Name:      "Riverbend Family Clinic",
			Specialty: str("Family Medicine"),
			Address:   "4501 Shoal Creek Blvd, Austin, TX 78756 • 3.5 miles",
			Phone:     str("Phone: (512) 555-0199"),
			Lat:       coord(30.3185),
			Lng:       coord(-97.7446),
			Source:    "mock",
			Score:     score(7),
		},
		{
			ID:        "3",
			Name:      "Bryan Goerig, MD",
			Specialty: str("Family Medicine"),
			Address:   "1730 Birmingham Rd., College Station, TX 77845",
			Phone:     str("(979) 703-1902"),
			Lat:       json.RawMessage(`"30.601389"`),
			Lng:       json.RawMessage(`"-96.314445"`),
			Source:    "bcbs_directory",
			Score:     score(8),
		},
		{
			ID:        "4",
			Name:      "Southside Cardiology Group",
			Specialty: str("Cardiology"),
			Address:   "2100 S 1st St, Austin, TX 78704",
			Phone:     str("Call 512.555.8811"),
			Lat:       coord(30.2442),
			Lng:       coord(-97.7619),
			Source:    "mock",
			Score:     score(10),
		},
		{
			ID:        "5",
			Name:      "Lakeside Pediatrics",
			Specialty: str("Pediatrics"),
			Address:   "900 Lakeshore Dr, Suite 2, Austin, TX 78741",
			Lat:       json.RawMessage(`null`),
			Lng:       json.RawMessage(`null`),
			Source:    "bcbs_directory",
		},
	}
}
