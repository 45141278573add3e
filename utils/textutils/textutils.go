// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils provides small helpers for matching human-entered text.
package textutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

// CollapseSpaces trims s and replaces every run of whitespace with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsFolded reports whether needle appears in any of the haystack
// fields once both sides are folded. An empty needle matches everything.
func ContainsFolded(needle string, haystack ...string) bool {
	needle = LowerASCIIFolding(needle)
	if needle == "" {
		return true
	}

	for _, h := range haystack {
		if strings.Contains(LowerASCIIFolding(h), needle) {
			return true
		}
	}

	return false
}
