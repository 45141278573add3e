// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerAsciiFolding(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello world"},
		{"  Spaces  ", "spaces"},
		{"Áéíóú", "aeiou"},
		{"Peña Clinic", "pena clinic"},
		{"Crème Brûlée", "creme brulee"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, LowerASCIIFolding(tc.input))
		})
	}
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "123 Main St Austin", CollapseSpaces("  123  Main\tSt\n Austin "))
	assert.Equal(t, "", CollapseSpaces(" \t "))
}

func TestContainsFolded(t *testing.T) {
	tests := []struct {
		name     string
		needle   string
		haystack []string
		want     bool
	}{
		{"empty needle", "", []string{"anything"}, true},
		{"blank needle", "   ", nil, true},
		{"case insensitive", "CARDIO", []string{"Southside Cardiology Group"}, true},
		{"accent insensitive", "jose", []string{"Dr. José Peña"}, true},
		{"second field", "78756", []string{"Riverbend", "Austin", "78756"}, true},
		{"no match", "dermatology", []string{"Cardiology", "Austin"}, false},
		{"no fields", "x", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ContainsFolded(tc.needle, tc.haystack...))
		})
	}
}
