// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/medmatch/medmatch/spatial"
	"github.com/medmatch/medmatch/utils/textutils"
	"golang.org/x/time/rate"
)

// MinPostalCodeLength is the shortest trimmed postal code worth resolving.
const MinPostalCodeLength = 5

// limited throttles a Geocoder.
type limited struct {
	Geocoder
	limiter *rate.Limiter
}

func (l *limited) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeRateLimit, Message: "waiting for rate limiter", Err: err}
	}

	return l.Geocoder.Geocode(ctx, query)
}

// Limit wraps g so that calls are throttled by limiter.
func Limit(g Geocoder, limiter *rate.Limiter) Geocoder {
	return &limited{Geocoder: g, limiter: limiter}
}

// Resolver tries geocoders in order and caches successful results by query.
type Resolver struct {
	geocoders []Geocoder

	mu    sync.Mutex
	cache map[string]*Result
}

// NewResolver returns a Resolver over geocoders, tried in the given order.
func NewResolver(geocoders ...Geocoder) *Resolver {
	return &Resolver{
		geocoders: geocoders,
		cache:     make(map[string]*Result),
	}
}

func cacheKey(query string) string {
	return textutils.CollapseSpaces(textutils.LowerASCIIFolding(query))
}

// Geocode implements Geocoder. A not found answer moves on to the next
// geocoder; other failures are collected and returned if no geocoder
// succeeds.
func (r *Resolver) Geocode(ctx context.Context, query string) (*Result, error) {
	key := cacheKey(query)
	if key == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "empty query"}
	}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()

	if ok {
		ret := *cached

		return &ret, nil
	}

	var errs []error

	for _, g := range r.geocoders {
		res, err := g.Geocode(ctx, query)
		if err == nil {
			r.mu.Lock()
			r.cache[key] = res
			r.mu.Unlock()

			ret := *res

			return &ret, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !IsNotFoundError(err) {
			log.Printf("Geocode - %q: %v", query, err)
		}

		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, notFound("resolver", query)
	}

	for _, err := range errs {
		if !IsNotFoundError(err) {
			return nil, fmt.Errorf("geocoding %q: %w", query, errors.Join(errs...))
		}
	}

	return nil, notFound("resolver", query)
}

// ResolvePostal resolves a postal code typed by the user. Codes shorter
// than MinPostalCodeLength after trimming resolve to no origin and no
// error, matching a half typed field.
func (r *Resolver) ResolvePostal(ctx context.Context, postal string) (*spatial.Point, error) {
	postal = strings.TrimSpace(postal)
	if len(postal) < MinPostalCodeLength {
		return nil, nil
	}

	res, err := r.Geocode(ctx, postal)
	if err != nil {
		return nil, err
	}

	p := res.Location

	return &p, nil
}
