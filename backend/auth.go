// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingCredentials is returned before any request when the email or
// password is empty.
var ErrMissingCredentials = errors.New("email and password are required")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges an email and password for a session. The email is sent as
// the username.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	var tokens tokenPair
	if err := c.do(ctx, call{
		op:     opLogin,
		method: http.MethodPost,
		path:   pathLogin,
		in:     loginRequest{Username: email, Password: password},
		out:    &tokens,
	}); err != nil {
		return nil, err
	}

	if tokens.Access == "" {
		return nil, &NetworkError{Type: ErrorTypeDecode, Op: opLogin, Err: errors.New("no access token in response")}
	}

	sess, err := NewSession(email, tokens.Access, tokens.Refresh)
	if err != nil {
		return nil, &NetworkError{Type: ErrorTypeDecode, Op: opLogin, Err: err}
	}

	return sess, nil
}

// Registration is a sign up request.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Account is a created account as the backend reports it.
type Account struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) (*Account, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Email == "" || reg.Password == "" {
		return nil, ErrMissingCredentials
	}

	var account Account
	if err := c.do(ctx, call{
		op:     opRegister,
		method: http.MethodPost,
		path:   pathRegister,
		in:     reg,
		out:    &account,
		want:   []int{http.StatusOK, http.StatusCreated},
	}); err != nil {
		return nil, err
	}

	return &account, nil
}
