// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/medmatch/medmatch/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupServerTest(t *testing.T) (*gin.Engine, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := New(&Options{Secret: []byte("test-secret"), BcryptCost: bcrypt.MinCost})

	return s.Router(), s
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func registerAndLogin(t *testing.T, router http.Handler, email string) string {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/auth/register/", "", gin.H{
		"email": email, "password": "correct horse", "first_name": "Ana",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/auth/login/", "", gin.H{"username": email, "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.Refresh)

	return tokens.Access
}

func TestRegister(t *testing.T) {
	router, _ := setupServerTest(t)

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"valid", gin.H{"email": "ana@example.com", "password": "long enough"}, http.StatusCreated},
		{"duplicate", gin.H{"email": "ANA@example.com", "password": "long enough"}, http.StatusBadRequest},
		{"bad email", gin.H{"email": "ana", "password": "long enough"}, http.StatusBadRequest},
		{"short password", gin.H{"email": "bob@example.com", "password": "short"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/auth/register/", "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestLoginIssuesUserIDClaim(t *testing.T) {
	router, _ := setupServerTest(t)
	token := registerAndLogin(t, router, "ana@example.com")

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, claims["user_id"], 0)
	assert.Equal(t, "access", claims["token_type"])

	w := doJSON(t, router, http.MethodPost, "/api/auth/login/", "", gin.H{"username": "ana@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/auth/login/", "", gin.H{"username": "nobody@example.com", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	router, s := setupServerTest(t)

	w := doJSON(t, router, http.MethodPost, "/api/searches/", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/searches/", "not-a-jwt", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	refresh, err := s.issue(1, tokenTypeRefresh, time.Hour)
	require.NoError(t, err)
	w = doJSON(t, router, http.MethodPost, "/api/searches/", refresh, gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are not accepted")

	expired, err := s.issue(1, tokenTypeAccess, -time.Minute)
	require.NoError(t, err)
	w = doJSON(t, router, http.MethodGet, "/api/app-settings/me/", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := New(&Options{Secret: []byte("other")})
	forged, err := other.issue(1, tokenTypeAccess, time.Hour)
	require.NoError(t, err)
	w = doJSON(t, router, http.MethodGet, "/api/app-settings/me/", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type searchBody struct {
	ID         int `json:"id"`
	GraphState struct {
		Specialty  string            `json:"specialty"`
		PostalCode string            `json:"postal_code"`
		Providers  []json.RawMessage `json:"providers"`
	} `json:"graph_state"`
}

func TestSearch(t *testing.T) {
	router, _ := setupServerTest(t)
	token := registerAndLogin(t, router, "ana@example.com")

	tests := []struct {
		name      string
		body      gin.H
		providers int
		specialty string
	}{
		{"defaults", gin.H{}, 5, DefaultSpecialty},
		{"specialty", gin.H{"specialty": "family medicine"}, 2, "family medicine"},
		{"query", gin.H{"query": "cardiology"}, 1, DefaultSpecialty},
		{"query on address", gin.H{"query": "college station"}, 1, DefaultSpecialty},
		{"no match", gin.H{"query": "dermatology"}, 0, DefaultSpecialty},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/searches/", token, tt.body)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

			var body searchBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, i+1, body.ID)
			assert.Len(t, body.GraphState.Providers, tt.providers)
			assert.Equal(t, tt.specialty, body.GraphState.Specialty)
			assert.Equal(t, DefaultPostalCode, body.GraphState.PostalCode)
			assert.NotNil(t, body.GraphState.Providers, "providers is always a list")
		})
	}
}

func TestSettings(t *testing.T) {
	router, _ := setupServerTest(t)
	token := registerAndLogin(t, router, "ana@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/app-settings/me/?user=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got settings.AppSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.User)
	assert.Equal(t, settings.DefaultRadiusMiles, got.RadiusMiles())

	w = doJSON(t, router, http.MethodPatch, "/api/app-settings/me/?user=1", token, gin.H{"age": 41, "member_id": "XJ-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Age)
	assert.Equal(t, 41, *got.Age)
	assert.Equal(t, settings.DefaultRadiusMiles, got.RadiusMiles(), "untouched fields are kept")

	w = doJSON(t, router, http.MethodPatch, "/api/app-settings/me/", token, gin.H{"age": 150, "default_radius_miles": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errs map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errs))
	assert.Contains(t, errs, "age")
	assert.Contains(t, errs, "default_radius_miles")

	w = doJSON(t, router, http.MethodGet, "/api/app-settings/me/", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 41, *got.Age, "rejected patches change nothing")

	w = doJSON(t, router, http.MethodGet, "/api/app-settings/me/?user=2", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/app-settings/me/?user=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
