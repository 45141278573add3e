// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medmatch/medmatch/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestPostalCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"78701", "78701"},
		{" 78701 ", "78701"},
		{"78701-1234", "78701"},
		{"7870", ""},
		{"787011", ""},
		{"Austin", ""},
		{"", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, PostalCode(test.input), "%q", test.input)
	}
}

func TestBuiltinPostalTable(t *testing.T) {
	r, err := BuiltinPostalTable.Geocode(context.Background(), "78756")
	require.NoError(t, err)

	assert.Equal(t, spatial.Point{Lat: 30.3185, Lon: -97.7446}, r.Location)
	assert.Equal(t, "Austin, TX 78756", r.DisplayName)
	assert.Equal(t, postalTableProvider, r.Provider)

	_, err = BuiltinPostalTable.Geocode(context.Background(), "10001")
	assert.True(t, IsNotFoundError(err))
}

func TestZippopotam(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		switch r.URL.Path {
		case "/us/77845":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"post code": "77845", "country": "United States", "country abbreviation": "US",
				"places": [{"place name": "College Station", "longitude": "-96.3144", "state": "Texas",
				"state abbreviation": "TX", "latitude": "30.6014"}]}`))
		case "/us/00000":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"places": []}`))
		case "/us/42424":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	z := NewZippopotam(srv.Client())
	z.BaseURL = srv.URL

	r, err := z.Geocode(context.Background(), "77845")
	require.NoError(t, err)
	assert.InDelta(t, 30.6014, r.Location.Lat, 1e-9)
	assert.InDelta(t, -96.3144, r.Location.Lon, 1e-9)
	assert.Equal(t, "College Station", r.City)
	assert.Equal(t, "TX", r.Region)
	assert.Equal(t, "77845", r.PostalCode)

	_, err = z.Geocode(context.Background(), "99999")
	assert.True(t, IsNotFoundError(err), "%v", err)

	_, err = z.Geocode(context.Background(), "00000")
	assert.True(t, IsNotFoundError(err), "%v", err)

	_, err = z.Geocode(context.Background(), "42424")
	assert.True(t, IsRateLimitError(err), "%v", err)

	before := calls.Load()
	_, err = z.Geocode(context.Background(), "Austin, TX")

	var geoErr *GeocodingError
	require.True(t, errors.As(err, &geoErr))
	assert.Equal(t, ErrorTypeInvalidRequest, geoErr.Type)
	assert.Equal(t, before, calls.Load(), "non ZIP queries are not sent")
}

func TestGoogleMaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`))

			return
		}

		switch r.URL.Query().Get("address") {
		case "123 Main St, Austin, TX":
			_, _ = w.Write([]byte(`{"status":"OK","results":[{
				"formatted_address":"123 Main St, Austin, TX 78701, USA",
				"geometry":{"location":{"lat":30.2715,"lng":-97.7426},"location_type":"ROOFTOP"},
				"address_components":[
					{"short_name":"Austin","types":["locality","political"]},
					{"short_name":"TX","types":["administrative_area_level_1","political"]},
					{"short_name":"78701","types":["postal_code"]}]}]}`))
		case "over":
			_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","results":[]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		}
	}))
	defer srv.Close()

	g := NewGoogleMaps("test-key", srv.Client())
	g.BaseURL = srv.URL

	r, err := g.Geocode(context.Background(), "123 Main St, Austin, TX")
	require.NoError(t, err)
	assert.Equal(t, spatial.Point{Lat: 30.2715, Lon: -97.7426}, r.Location)
	assert.Equal(t, ConfidenceHigh, r.Confidence)
	assert.Equal(t, "Austin", r.City)
	assert.Equal(t, "TX", r.Region)
	assert.Equal(t, "78701", r.PostalCode)

	_, err = g.Geocode(context.Background(), "nowhere")
	assert.True(t, IsNotFoundError(err), "%v", err)

	_, err = g.Geocode(context.Background(), "over")
	assert.True(t, IsQuotaExceededError(err), "%v", err)

	bad := NewGoogleMaps("wrong", srv.Client())
	bad.BaseURL = srv.URL
	_, err = bad.Geocode(context.Background(), "123 Main St, Austin, TX")
	assert.ErrorContains(t, err, "bad key")

	_, err = NewGoogleMaps("", nil).Geocode(context.Background(), "x")
	assert.ErrorContains(t, err, "no API key")
}

func TestGoogleMapsAPIKeyPrefersExplicitKey(t *testing.T) {
	key, err := GoogleMapsAPIKey(context.Background(), "explicit", "")
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)
}

// countingGeocoder answers from a table and counts calls.
type countingGeocoder struct {
	calls   atomic.Int32
	answers map[string]*Result
	err     error
}

func (c *countingGeocoder) Geocode(_ context.Context, query string) (*Result, error) {
	c.calls.Add(1)

	if c.err != nil {
		return nil, c.err
	}

	if r, ok := c.answers[query]; ok {
		return r, nil
	}

	return nil, notFound("counting", query)
}

func TestResolverChainAndCache(t *testing.T) {
	remote := &countingGeocoder{answers: map[string]*Result{
		"77845": {Location: spatial.Point{Lat: 30.6, Lon: -96.3}, Provider: "remote"},
	}}

	r := NewResolver(BuiltinPostalTable, remote)

	res, err := r.Geocode(context.Background(), "78701")
	require.NoError(t, err)
	assert.Equal(t, postalTableProvider, res.Provider)
	assert.Zero(t, remote.calls.Load(), "the table answers first")

	res, err = r.Geocode(context.Background(), "77845")
	require.NoError(t, err)
	assert.Equal(t, "remote", res.Provider)

	// mutating a result must not poison the cache
	res.Provider = "changed"

	res, err = r.Geocode(context.Background(), " 77845 ")
	require.NoError(t, err)
	assert.Equal(t, "remote", res.Provider)
	assert.Equal(t, int32(1), remote.calls.Load(), "served from cache")

	_, err = r.Geocode(context.Background(), "10001")
	assert.True(t, IsNotFoundError(err))

	_, err = r.Geocode(context.Background(), "   ")
	assert.Error(t, err)
}

func TestResolverReportsFailures(t *testing.T) {
	boom := &GeocodingError{Type: ErrorTypeNetworkError, Message: "down"}
	r := NewResolver(BuiltinPostalTable, &countingGeocoder{err: boom})

	_, err := r.Geocode(context.Background(), "10001")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsNotFoundError(err))
}

func TestResolvePostal(t *testing.T) {
	remote := &countingGeocoder{}
	r := NewResolver(BuiltinPostalTable, remote)

	tests := []struct {
		input    string
		expected *spatial.Point
	}{
		{"78758", &spatial.Point{Lat: 30.3718, Lon: -97.7203}},
		{" 78704 ", &spatial.Point{Lat: 30.2442, Lon: -97.7619}},
		{"7870", nil},
		{"   787 ", nil},
		{"", nil},
	}

	for _, test := range tests {
		p, err := r.ResolvePostal(context.Background(), test.input)
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, p, test.input)
	}

	assert.Zero(t, remote.calls.Load(), "short codes never reach a provider")
}

func TestLimit(t *testing.T) {
	remote := &countingGeocoder{answers: map[string]*Result{"a": {}, "b": {}}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	g := Limit(remote, limiter)

	_, err := g.Geocode(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Geocode(ctx, "b")
	assert.True(t, IsRateLimitError(err), "%v", err)
	assert.Equal(t, int32(1), remote.calls.Load())
}

func TestOrigin(t *testing.T) {
	r := NewResolver(BuiltinPostalTable)
	device := FixedLocator{Point: &AustinCityHall}

	p, err := Origin(context.Background(), true, device, r, "78701")
	require.NoError(t, err)
	assert.Equal(t, AustinCityHall, *p)

	p, err = Origin(context.Background(), false, device, r, "78701")
	require.NoError(t, err)
	assert.Equal(t, spatial.Point{Lat: 30.2715, Lon: -97.7426}, *p)

	p, err = Origin(context.Background(), true, FixedLocator{}, r, "78701")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, p)

	_, err = Origin(context.Background(), true, nil, r, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFixedLocatorCopies(t *testing.T) {
	origin := spatial.Point{Lat: 1, Lon: 2}
	l := FixedLocator{Point: &origin}

	p, err := l.Locate(context.Background())
	require.NoError(t, err)

	p.Lat = 99
	assert.InDelta(t, 1.0, origin.Lat, 0)
}
