// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"github.com/medmatch/medmatch/spatial"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// DefaultGoogleMapsURL is the Google Maps Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// APIKeyDisplayName is the display name of the API key looked up through
// Application Default Credentials.
const APIKeyDisplayName = "MedMatch Geocoding Key"

const googleMapsProvider = "google_maps"

// GoogleMaps uses the Google Maps Geocoding API, biased to the US.
type GoogleMaps struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGoogleMaps creates a new Google Maps geocoder.
func NewGoogleMaps(apiKey string, httpClient *http.Client) *GoogleMaps {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &GoogleMaps{
		BaseURL:    DefaultGoogleMapsURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		AddressComponents []struct {
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, OVER_QUERY_LIMIT, REQUEST_DENIED, INVALID_REQUEST
	ErrorMessage string `json:"error_message"`
}

// Geocode implements Geocoder.
func (g *GoogleMaps) Geocode(ctx context.Context, query string) (*Result, error) {
	if g.apiKey == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: googleMapsProvider + ": no API key"}
	}

	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)
	params.Set("region", "us")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: googleMapsProvider + ": request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, googleMapsProvider)
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, notFound(googleMapsProvider, query)
	case "OVER_QUERY_LIMIT":
		return nil, &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: googleMapsProvider + ": " + gmResp.Status}
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("%s: %s %s", googleMapsProvider, gmResp.Status, gmResp.ErrorMessage),
		}
	default:
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: googleMapsProvider + " status: " + gmResp.Status}
	}

	if len(gmResp.Results) == 0 {
		return nil, notFound(googleMapsProvider, query)
	}

	result := gmResp.Results[0]

	confidence := ConfidenceLow

	switch result.Geometry.LocationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		confidence = ConfidenceHigh
	case "GEOMETRIC_CENTER":
		confidence = ConfidenceMedium
	}

	r := &Result{
		Location:    spatial.Point{Lat: result.Geometry.Location.Lat, Lon: result.Geometry.Location.Lng},
		DisplayName: result.FormattedAddress,
		Confidence:  confidence,
		Provider:    googleMapsProvider,
	}

	for _, c := range result.AddressComponents {
		for _, typ := range c.Types {
			switch typ {
			case "locality":
				r.City = c.ShortName
			case "administrative_area_level_1":
				r.Region = c.ShortName
			case "postal_code":
				r.PostalCode = c.ShortName
			}
		}
	}

	return r, nil
}

// APIKeyFromADC looks up the geocoding API key of the project behind the
// Application Default Credentials. projectID overrides the project found in
// the credentials.
func APIKeyFromADC(ctx context.Context, projectID string) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	if projectID == "" {
		projectID = creds.ProjectID
	}

	if projectID == "" {
		return "", errors.New("no project id in credentials, set MEDMATCH_GCP_PROJECT")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != APIKeyDisplayName {
			continue
		}

		// ListKeys redacts the secret
		log.Printf("Geocode - found key resource '%s', retrieving secret...", key.Name)

		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key '%s' has an empty key string", APIKeyDisplayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name '%s' not found in project %s", APIKeyDisplayName, projectID)
}

// GoogleMapsAPIKey returns key when set, otherwise the key found through
// Application Default Credentials.
func GoogleMapsAPIKey(ctx context.Context, key, projectID string) (string, error) {
	if key != "" {
		return key, nil
	}

	log.Println("Geocode - GOOGLE_MAPS_API_KEY is not set, trying Application Default Credentials")

	return APIKeyFromADC(ctx, projectID)
}
