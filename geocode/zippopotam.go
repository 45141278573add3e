// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/medmatch/medmatch/spatial"
)

// DefaultZippopotamURL is the public Zippopotam API.
const DefaultZippopotamURL = "https://api.zippopotam.us"

const zippopotamProvider = "zippopotam"

// Zippopotam resolves US postal codes with the Zippopotam API.
type Zippopotam struct {
	BaseURL    string
	httpClient *http.Client
}

// NewZippopotam creates a client. A nil httpClient gets a default one.
func NewZippopotam(httpClient *http.Client) *Zippopotam {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Zippopotam{BaseURL: DefaultZippopotamURL, httpClient: httpClient}
}

type zippopotamResponse struct {
	PostCode string `json:"post code"`
	Places   []struct {
		PlaceName         string `json:"place name"`
		State             string `json:"state"`
		StateAbbreviation string `json:"state abbreviation"`
		Latitude          string `json:"latitude"`
		Longitude         string `json:"longitude"`
	} `json:"places"`
}

// Geocode implements Geocoder. Only 5 digit ZIP codes are looked up.
func (z *Zippopotam) Geocode(ctx context.Context, query string) (*Result, error) {
	zip := PostalCode(query)
	if zip == "" {
		return nil, &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("%s: %q is not a ZIP code", zippopotamProvider, query),
		}
	}

	reqURL := strings.TrimRight(z.BaseURL, "/") + "/us/" + zip

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		typ := ErrorTypeNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			typ = ErrorTypeTimeout
		}

		return nil, &GeocodingError{Type: typ, Message: zippopotamProvider + ": request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, zippopotamProvider)
	}

	var body zippopotamResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", zippopotamProvider, err)
	}

	if len(body.Places) == 0 {
		return nil, notFound(zippopotamProvider, zip)
	}

	place := body.Places[0]

	lat, err := strconv.ParseFloat(place.Latitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing latitude %q: %w", place.Latitude, err)
	}

	lon, err := strconv.ParseFloat(place.Longitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing longitude %q: %w", place.Longitude, err)
	}

	return &Result{
		Location:    spatial.Point{Lat: lat, Lon: lon},
		City:        place.PlaceName,
		Region:      place.StateAbbreviation,
		PostalCode:  zip,
		DisplayName: fmt.Sprintf("%s, %s %s", place.PlaceName, place.StateAbbreviation, zip),
		Confidence:  ConfidenceMedium,
		Provider:    zippopotamProvider,
	}, nil
}
