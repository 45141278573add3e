// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings models the per user app settings and the optimistic,
// debounced editing of them.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultRadiusMiles is the search radius a new account starts with.
const DefaultRadiusMiles = 25

// Backend validation bounds.
const (
	MinAge    = 0
	MaxAge    = 120
	MinRadius = 1
	MaxRadius = 200
)

// AppSettings are the settings stored by the backend for one user. Every
// field but User is optional.
type AppSettings struct {
	ID                   *int    `json:"id,omitempty"`
	User                 int     `json:"user"`
	PushNotifications    *bool   `json:"push_notifications,omitempty"`
	Age                  *int    `json:"age,omitempty"`
	InsuranceNetwork     *int    `json:"insurance_network,omitempty"`
	InsuranceNetworkName *string `json:"insurance_network_name,omitempty"`
	InsurancePlan        *int    `json:"insurance_plan,omitempty"`
	InsurancePlanName    *string `json:"insurance_plan_name,omitempty"`
	DefaultRadiusMiles   *int    `json:"default_radius_miles,omitempty"`
	GroupID              *string `json:"group_id,omitempty"`
	MemberID             *string `json:"member_id,omitempty"`
	MemberFirstName      *string `json:"member_first_name,omitempty"`
	MemberLastName       *string `json:"member_last_name,omitempty"`
}

// Default returns the settings a user gets before saving anything.
func Default(user int) AppSettings {
	push, radius := true, DefaultRadiusMiles

	return AppSettings{
		User:               user,
		PushNotifications:  &push,
		DefaultRadiusMiles: &radius,
	}
}

// RadiusMiles returns the configured search radius or the default.
func (s AppSettings) RadiusMiles() int {
	if s.DefaultRadiusMiles == nil {
		return DefaultRadiusMiles
	}

	return *s.DefaultRadiusMiles
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	PushNotifications    *bool   `json:"push_notifications,omitempty"`
	Age                  *int    `json:"age,omitempty"`
	InsuranceNetwork     *int    `json:"insurance_network,omitempty"`
	InsuranceNetworkName *string `json:"insurance_network_name,omitempty"`
	InsurancePlan        *int    `json:"insurance_plan,omitempty"`
	InsurancePlanName    *string `json:"insurance_plan_name,omitempty"`
	DefaultRadiusMiles   *int    `json:"default_radius_miles,omitempty"`
	GroupID              *string `json:"group_id,omitempty"`
	MemberID             *string `json:"member_id,omitempty"`
	MemberFirstName      *string `json:"member_first_name,omitempty"`
	MemberLastName       *string `json:"member_last_name,omitempty"`
}

// pick returns a copy of b when set, otherwise a.
func pick[T any](a, b *T) *T {
	if b == nil {
		return a
	}

	v := *b

	return &v
}

// Merge returns p updated with every field set in o. The later patch wins
// field by field.
func (p Patch) Merge(o Patch) Patch {
	return Patch{
		PushNotifications:    pick(p.PushNotifications, o.PushNotifications),
		Age:                  pick(p.Age, o.Age),
		InsuranceNetwork:     pick(p.InsuranceNetwork, o.InsuranceNetwork),
		InsuranceNetworkName: pick(p.InsuranceNetworkName, o.InsuranceNetworkName),
		InsurancePlan:        pick(p.InsurancePlan, o.InsurancePlan),
		InsurancePlanName:    pick(p.InsurancePlanName, o.InsurancePlanName),
		DefaultRadiusMiles:   pick(p.DefaultRadiusMiles, o.DefaultRadiusMiles),
		GroupID:              pick(p.GroupID, o.GroupID),
		MemberID:             pick(p.MemberID, o.MemberID),
		MemberFirstName:      pick(p.MemberFirstName, o.MemberFirstName),
		MemberLastName:       pick(p.MemberLastName, o.MemberLastName),
	}
}

// Apply returns s with the fields set in p overlaid.
func (p Patch) Apply(s AppSettings) AppSettings {
	s.PushNotifications = pick(s.PushNotifications, p.PushNotifications)
	s.Age = pick(s.Age, p.Age)
	s.InsuranceNetwork = pick(s.InsuranceNetwork, p.InsuranceNetwork)
	s.InsuranceNetworkName = pick(s.InsuranceNetworkName, p.InsuranceNetworkName)
	s.InsurancePlan = pick(s.InsurancePlan, p.InsurancePlan)
	s.InsurancePlanName = pick(s.InsurancePlanName, p.InsurancePlanName)
	s.DefaultRadiusMiles = pick(s.DefaultRadiusMiles, p.DefaultRadiusMiles)
	s.GroupID = pick(s.GroupID, p.GroupID)
	s.MemberID = pick(s.MemberID, p.MemberID)
	s.MemberFirstName = pick(s.MemberFirstName, p.MemberFirstName)
	s.MemberLastName = pick(s.MemberLastName, p.MemberLastName)

	return s
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// ErrInvalidSettings is matched by every validation error.
var ErrInvalidSettings = errors.New("invalid settings")

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidSettings) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSettings
}

// Validate applies the backend rules to the fields set in p.
func (p Patch) Validate() error {
	var errs []error

	if p.Age != nil && (*p.Age < MinAge || *p.Age > MaxAge) {
		errs = append(errs, &ValidationError{
			Field:   "age",
			Message: fmt.Sprintf("must be between %d and %d", MinAge, MaxAge),
		})
	}

	if p.DefaultRadiusMiles != nil && (*p.DefaultRadiusMiles < MinRadius || *p.DefaultRadiusMiles > MaxRadius) {
		errs = append(errs, &ValidationError{
			Field:   "default_radius_miles",
			Message: fmt.Sprintf("must be between %d and %d", MinRadius, MaxRadius),
		})
	}

	for _, fk := range []struct {
		name string
		id   *int
	}{
		{"insurance_network", p.InsuranceNetwork},
		{"insurance_plan", p.InsurancePlan},
	} {
		if fk.id != nil && *fk.id < 1 {
			errs = append(errs, &ValidationError{Field: fk.name, Message: "must be a positive id"})
		}
	}

	return errors.Join(errs...)
}

// Keys lists the settings that can be assigned by name.
var Keys = []string{
	"push_notifications", "age",
	"insurance_network", "insurance_network_name",
	"insurance_plan", "insurance_plan_name",
	"default_radius_miles",
	"group_id", "member_id", "member_first_name", "member_last_name",
}

// ParseAssignment parses a "key=value" pair into a single field patch. The
// legacy name default_search_radius is accepted for the radius.
func ParseAssignment(s string) (Patch, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return Patch{}, fmt.Errorf("expected key=value, got %q", s)
	}

	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	if key == "default_search_radius" || key == "radius" {
		key = "default_radius_miles"
	}

	if !slices.Contains(Keys, key) {
		return Patch{}, fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(Keys, ", "))
	}

	if value == "" {
		return Patch{}, fmt.Errorf("%s: empty value", key)
	}

	var p Patch

	switch key {
	case "push_notifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return Patch{}, fmt.Errorf("%s: %w", key, err)
		}

		p.PushNotifications = &b
	case "age", "insurance_network", "insurance_plan", "default_radius_miles":
		n, err := strconv.Atoi(value)
		if err != nil {
			return Patch{}, fmt.Errorf("%s: not a number: %q", key, value)
		}

		switch key {
		case "age":
			p.Age = &n
		case "insurance_network":
			p.InsuranceNetwork = &n
		case "insurance_plan":
			p.InsurancePlan = &n
		default:
			p.DefaultRadiusMiles = &n
		}
	case "insurance_network_name":
		p.InsuranceNetworkName = &value
	case "insurance_plan_name":
		p.InsurancePlanName = &value
	case "group_id":
		p.GroupID = &value
	case "member_id":
		p.MemberID = &value
	case "member_first_name":
		p.MemberFirstName = &value
	case "member_last_name":
		p.MemberLastName = &value
	}

	return p, nil
}
