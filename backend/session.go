// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when a call needs a session and there is none.
var ErrNoSession = errors.New("not logged in")

// UserIDClaim is the access token claim holding the account id.
const UserIDClaim = "user_id"

// Session is an authenticated account: its id and the token pair issued at
// login.
type Session struct {
	UserID  int    `json:"user_id"`
	Email   string `json:"email,omitempty"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// NewSession builds a session from a token pair. The user id is read from
// the access token. The signature is not checked; the backend does that on
// every call.
func NewSession(email, access, refresh string) (*Session, error) {
	id, err := UserIDFromToken(access)
	if err != nil {
		return nil, err
	}

	return &Session{UserID: id, Email: email, Access: access, Refresh: refresh}, nil
}

// UserIDFromToken extracts the user id claim of a JWT.
func UserIDFromToken(token string) (int, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("parsing access token: %w", err)
	}

	raw, ok := claims[UserIDClaim]
	if !ok {
		return 0, fmt.Errorf("access token has no %s claim", UserIDClaim)
	}

	var id int

	switch v := raw.(type) {
	case float64:
		id = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s claim %q: %w", UserIDClaim, v, err)
		}

		id = n
	default:
		return 0, fmt.Errorf("%s claim has type %T", UserIDClaim, raw)
	}

	if id < 1 {
		return 0, fmt.Errorf("%s claim %d is not a valid id", UserIDClaim, id)
	}

	return id, nil
}

func (s *Session) authorize(req *http.Request) {
	if s.Access != "" {
		req.Header.Set("Authorization", "Bearer "+s.Access)
	}
}

// Valid reports whether s can be used for authenticated calls.
func (s *Session) Valid() bool {
	return s != nil && s.UserID > 0 && s.Access != ""
}

// Save writes s to path, readable only by the owner.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// LoadSession reads a session saved with Save. A missing file is
// ErrNoSession.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}

	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", path, err)
	}

	if !s.Valid() {
		return nil, ErrNoSession
	}

	return &s, nil
}

// RemoveSession deletes the session at path. A missing file is not an error.
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}

	return nil
}
