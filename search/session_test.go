// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/medmatch/medmatch/backend"
	"github.com/medmatch/medmatch/devserver"
	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher answers with fixed records. When gate is set, it blocks
// until gate is closed.
type fakeSearcher struct {
	records []provider.RawRecord
	err     error
	gate    chan struct{}

	mu    sync.Mutex
	calls []backend.SearchRequest
}

func (f *fakeSearcher) Search(ctx context.Context, _ *backend.Session, req backend.SearchRequest) (*backend.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.err != nil {
		return nil, f.err
	}

	return &backend.SearchResponse{
		ID:         provider.RecordID(string(rune('0' + n))),
		GraphState: backend.GraphState{Providers: f.records},
	}, nil
}

var auth = &backend.Session{UserID: 1, Access: "token"}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func ids(ranked []provider.RankedProvider) []string {
	ret := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ret = append(ret, r.ID)
	}

	return ret
}

func TestSubmitNormalizesAndCountsRejected(t *testing.T) {
	s := NewSession(&fakeSearcher{records: devserver.MockProviders()})

	res, err := s.Submit(context.Background(), auth, backend.SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, provider.RecordID("1"), res.SearchID)
	assert.Equal(t, 4, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.ErrorIs(t, res.Rejected[0], provider.ErrMalformedRecord)

	p, ok := s.Find("2")
	require.True(t, ok)
	assert.Equal(t, "(512) 555-0199", p.Phone)
	assert.Equal(t, "78756", p.PostalCode)

	_, ok = s.Find("5")
	assert.False(t, ok, "malformed records are not listed")
}

func TestSubmitFailureKeepsList(t *testing.T) {
	searcher := &fakeSearcher{records: devserver.MockProviders()}
	s := NewSession(searcher)

	_, err := s.Submit(context.Background(), auth, backend.SearchRequest{})
	require.NoError(t, err)

	searcher.err = &backend.NetworkError{Type: backend.ErrorTypeTransport, Op: "search"}
	_, err = s.Submit(context.Background(), auth, backend.SearchRequest{})
	require.ErrorIs(t, err, backend.ErrNetworkFailure)
	assert.Len(t, s.Providers(), 4)
}

func TestViewAustin(t *testing.T) {
	s := NewSession(&fakeSearcher{records: devserver.MockProviders()})
	_, err := s.Submit(context.Background(), auth, backend.SearchRequest{})
	require.NoError(t, err)

	// no origin yet: nothing has a distance, input order is kept
	view := s.View()
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(view))

	for _, r := range view {
		assert.Nil(t, r.Distance)
	}

	s.SetOrigin(&geocode.AustinCityHall)
	assert.Equal(t, []string{"1", "4", "2", "3"}, ids(s.View()))

	s.SetSort(provider.SortByScore)
	assert.Equal(t, []string{"4", "1", "3", "2"}, ids(s.View()))

	s.SetRadius(10)
	assert.Equal(t, []string{"4", "1", "2"}, ids(s.View()))

	s.SetQuery("family")
	assert.Equal(t, []string{"2"}, ids(s.View()))

	s.SetQuery("")
	s.SetRadius(0)
	s.SetOrigin(nil)
	assert.Nil(t, s.Origin())
	assert.Equal(t, []string{"4", "1", "3", "2"}, ids(s.View()))
}

func TestViewReturnsFreshSlices(t *testing.T) {
	s := NewSession(&fakeSearcher{records: devserver.MockProviders()})
	_, err := s.Submit(context.Background(), auth, backend.SearchRequest{})
	require.NoError(t, err)

	first := s.View()
	first[0].Name = "changed"

	if diff := cmp.Diff(s.Providers()[0].Name, "Dr. Alicia Patel, MD"); diff != "" {
		t.Errorf("view aliases the session (-got +want):\n%s", diff)
	}
}

func TestSetOriginCopies(t *testing.T) {
	s := NewSession(&fakeSearcher{})
	origin := spatial.Point{Lat: 1, Lon: 2}
	s.SetOrigin(&origin)

	origin.Lat = 50
	assert.InDelta(t, 1.0, s.Origin().Lat, 0)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		locate     Locate
		wantOrigin *spatial.Point
		wantErr    bool
	}{
		{
			name:       "device position",
			locate:     geocode.FixedLocator{Point: &geocode.AustinCityHall}.Locate,
			wantOrigin: &geocode.AustinCityHall,
		},
		{
			name:   "permission denied is soft",
			locate: geocode.FixedLocator{}.Locate,
		},
		{
			name: "short postal code",
			locate: func(ctx context.Context) (*spatial.Point, error) {
				return geocode.NewResolver(geocode.BuiltinPostalTable).ResolvePostal(ctx, "787")
			},
		},
		{
			name: "lookup failure",
			locate: func(context.Context) (*spatial.Point, error) {
				return nil, errors.New("geocoder down")
			},
			wantErr: true,
		},
		{
			name: "no locator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(&fakeSearcher{records: devserver.MockProviders()})

			res, err := s.Resolve(context.Background(), auth, backend.SearchRequest{}, tt.locate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.NotNil(t, res, "the search result survives origin failures")
			assert.Equal(t, 4, res.Accepted)
			assert.Equal(t, tt.wantOrigin, s.Origin())
		})
	}
}

func TestResolveOriginArrivesFirst(t *testing.T) {
	searcher := &fakeSearcher{records: devserver.MockProviders(), gate: make(chan struct{})}
	s := NewSession(searcher)

	located := make(chan struct{})
	locate := func(context.Context) (*spatial.Point, error) {
		defer close(located)

		return &geocode.AustinCityHall, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Resolve(context.Background(), auth, backend.SearchRequest{}, locate)
		done <- err
	}()

	<-located
	assert.Eventually(t, func() bool { return s.Origin() != nil }, waitFor, tick)
	assert.Empty(t, s.View(), "origin without results ranks nothing")

	close(searcher.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"1", "4", "2", "3"}, ids(s.View()))
}

func TestLastSubmitWins(t *testing.T) {
	searcher := &fakeSearcher{records: devserver.MockProviders()}
	s := NewSession(searcher)

	_, err := s.Submit(context.Background(), auth, backend.SearchRequest{Query: "first"})
	require.NoError(t, err)

	searcher.records = devserver.MockProviders()[:2]
	_, err = s.Submit(context.Background(), auth, backend.SearchRequest{Query: "second"})
	require.NoError(t, err)

	assert.Equal(t, provider.RecordID("2"), s.SearchID())
	assert.Len(t, s.Providers(), 2, "a new search replaces the list")
}
