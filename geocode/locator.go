// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"

	"github.com/medmatch/medmatch/spatial"
)

// ErrPermissionDenied is returned when the device position may not be read.
// Callers treat it as "no origin", not as a failure.
var ErrPermissionDenied = errors.New("location permission denied")

// AustinCityHall is the position used when the device reports none.
var AustinCityHall = spatial.Point{Lat: 30.2654, Lon: -97.7431}

// DeviceLocator reads the current position of the device.
type DeviceLocator interface {
	Locate(ctx context.Context) (*spatial.Point, error)
}

// FixedLocator reports a configured position. A nil Point behaves like a
// device where location access was refused.
type FixedLocator struct {
	Point *spatial.Point
}

// Locate implements DeviceLocator.
func (l FixedLocator) Locate(ctx context.Context) (*spatial.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.Point == nil {
		return nil, ErrPermissionDenied
	}

	p := *l.Point

	return &p, nil
}

// LocatorFunc adapts a function to DeviceLocator.
type LocatorFunc func(ctx context.Context) (*spatial.Point, error)

// Locate implements DeviceLocator.
func (f LocatorFunc) Locate(ctx context.Context) (*spatial.Point, error) {
	return f(ctx)
}

// Origin picks the point distances are measured from: the device position
// when useDevice is set, the resolved postal code otherwise.
func Origin(ctx context.Context, useDevice bool, device DeviceLocator, r *Resolver, postal string) (*spatial.Point, error) {
	if useDevice {
		if device == nil {
			return nil, ErrPermissionDenied
		}

		return device.Locate(ctx)
	}

	return r.ResolvePostal(ctx, postal)
}
