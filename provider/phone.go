// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"regexp"
	"strings"
)

var (
	phoneRegex      = regexp.MustCompile(`(\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4}`)
	phoneLabelRegex = regexp.MustCompile(`^\p{L}+:?\s+`)
)

// CleanPhone extracts a North American phone number from a possibly labelled
// string ("Call (979) 691-3300"). The number is returned as written. When no
// number is found a leading label word is stripped and the remainder
// returned. A nil or empty input yields "".
func CleanPhone(s *string) string {
	if s == nil {
		return ""
	}

	raw := strings.TrimSpace(*s)
	if raw == "" {
		return ""
	}

	if m := phoneRegex.FindString(raw); m != "" {
		return m
	}

	return strings.TrimSpace(phoneLabelRegex.ReplaceAllString(raw, ""))
}
