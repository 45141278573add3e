// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"regexp"
	"strings"

	"github.com/medmatch/medmatch/utils/textutils"
)

var postalCodeRegex = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// distance suffix separators the provider directory appends to addresses,
// both as a bullet and as its UTF-8 bytes read as Windows-1252.
var addressSuffixSeparators = []string{"â€¢", "•", "·"}

// CleanAddress drops the "• 2.3 miles" style suffix scraped addresses carry
// and collapses whitespace.
func CleanAddress(raw string) string {
	for _, sep := range addressSuffixSeparators {
		if idx := strings.Index(raw, sep); idx >= 0 {
			raw = raw[:idx]
		}
	}

	return textutils.CollapseSpaces(raw)
}

// ParseAddress decomposes a single line address of the shape
// "<street>, <city>, <region> <postal>". It never fails: parts that cannot be
// recovered are left empty.
func ParseAddress(s string) Address {
	street, rest, found := strings.Cut(s, ",")
	street = strings.TrimSpace(street)

	if !found {
		return Address{Street: street}
	}

	parts := make([]string, 0, 3)

	for _, part := range strings.Split(rest, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	var addr Address

	switch len(parts) {
	case 0:
	case 1:
		addr.City = parts[0]
	default:
		// "100 Main St, Suite 200, Springfield, TX 77845"
		extra := parts[:len(parts)-2]
		if len(extra) > 0 {
			street = strings.Join(append([]string{street}, extra...), ", ")
		}

		addr.City = parts[len(parts)-2]
		addr.Region, addr.PostalCode = splitRegionPostal(parts[len(parts)-1])
	}

	addr.Street = street

	return addr
}

// splitRegionPostal splits "TX 77845" into its region and postal code.
func splitRegionPostal(s string) (string, string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", ""
	}

	last := fields[len(fields)-1]
	if !postalCodeRegex.MatchString(last) {
		return strings.Join(fields, " "), ""
	}

	return strings.Join(fields[:len(fields)-1], " "), last
}
