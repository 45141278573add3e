// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package search holds the state of one provider search screen: the last
// results, the origin distances are measured from and the view options.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/medmatch/medmatch/backend"
	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/spatial"
	"golang.org/x/sync/errgroup"
)

// Searcher runs a search against the backend.
type Searcher interface {
	Search(ctx context.Context, sess *backend.Session, req backend.SearchRequest) (*backend.SearchResponse, error)
}

// Locate resolves the origin. It returns geocode.ErrPermissionDenied when
// the position may not be read.
type Locate func(ctx context.Context) (*spatial.Point, error)

// Result summarizes a submitted search.
type Result struct {
	SearchID provider.RecordID
	Accepted int
	Rejected []error
}

// Session is the state of a search screen. Every setter replaces one input
// atomically and View always ranks a consistent snapshot.
type Session struct {
	searcher Searcher

	mu        sync.Mutex
	searchID  provider.RecordID
	providers []provider.Provider
	origin    *spatial.Point
	sortKey   provider.SortKey
	query     string
	radius    float64
}

// NewSession returns an empty session sorting by distance.
func NewSession(searcher Searcher) *Session {
	return &Session{
		searcher: searcher,
		sortKey:  provider.SortByDistance,
	}
}

// Submit runs req and replaces the provider list with its normalized
// results. Malformed records are left out and reported in the Result. On
// failure the current list is kept.
func (s *Session) Submit(ctx context.Context, auth *backend.Session, req backend.SearchRequest) (*Result, error) {
	resp, err := s.searcher.Search(ctx, auth, req)
	if err != nil {
		return nil, fmt.Errorf("searching providers: %w", err)
	}

	providers, rejected := provider.NormalizeAll(resp.GraphState.Providers)
	for _, err := range rejected {
		log.Printf("Search %s - skipping record: %v", resp.ID, err)
	}

	s.mu.Lock()
	s.searchID = resp.ID
	s.providers = providers
	s.mu.Unlock()

	return &Result{SearchID: resp.ID, Accepted: len(providers), Rejected: rejected}, nil
}

// Resolve submits req and resolves the origin concurrently. Each result is
// stored as soon as it arrives. A denied location leaves the origin as it
// was and is not an error.
func (s *Session) Resolve(ctx context.Context, auth *backend.Session, req backend.SearchRequest, locate Locate) (*Result, error) {
	var (
		g      errgroup.Group
		result *Result
	)

	g.Go(func() error {
		var err error
		result, err = s.Submit(ctx, auth, req)

		return err
	})

	if locate != nil {
		g.Go(func() error {
			origin, err := locate(ctx)
			if errors.Is(err, geocode.ErrPermissionDenied) {
				log.Printf("Search - origin not available: %v", err)

				return nil
			}

			if err != nil {
				return fmt.Errorf("resolving origin: %w", err)
			}

			if origin != nil {
				s.SetOrigin(origin)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	return result, nil
}

// SetOrigin replaces the origin. Nil clears it.
func (s *Session) SetOrigin(origin *spatial.Point) {
	var p *spatial.Point
	if origin != nil {
		v := *origin
		p = &v
	}

	s.mu.Lock()
	s.origin = p
	s.mu.Unlock()
}

// SetSort replaces the sort key.
func (s *Session) SetSort(key provider.SortKey) {
	s.mu.Lock()
	s.sortKey = key
	s.mu.Unlock()
}

// SetQuery replaces the text filter. Empty keeps every provider.
func (s *Session) SetQuery(query string) {
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()
}

// SetRadius replaces the radius filter in miles. Zero or less disables it.
func (s *Session) SetRadius(miles float64) {
	s.mu.Lock()
	s.radius = miles
	s.mu.Unlock()
}

// Origin returns a copy of the current origin, nil when unset.
func (s *Session) Origin() *spatial.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.origin == nil {
		return nil
	}

	p := *s.origin

	return &p
}

// SearchID returns the id of the last successful search.
func (s *Session) SearchID() provider.RecordID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.searchID
}

// Providers returns a copy of the current provider list.
func (s *Session) Providers() []provider.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.providers)
}

// Find returns the provider with id from the current list.
func (s *Session) Find(id string) (provider.Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.providers, func(p provider.Provider) bool { return p.ID == id })
	if i < 0 {
		return provider.Provider{}, false
	}

	return s.providers[i], true
}

// View filters, ranks and trims the current list by radius.
func (s *Session) View() []provider.RankedProvider {
	s.mu.Lock()
	providers := s.providers
	origin := s.origin
	key := s.sortKey
	query := s.query
	radius := s.radius
	s.mu.Unlock()

	// providers is never mutated in place, only replaced
	ranked := provider.Rank(provider.Filter(providers, query), origin, key)

	return provider.WithinRadius(ranked, radius)
}
