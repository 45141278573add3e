// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend is the client of the MedMatch REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/medmatch/medmatch/utils/httputils"
)

// DefaultBaseURL is the API root of a backend running on the same machine.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// API paths, relative to the base URL. The backend routes them with a
// trailing slash.
const (
	pathLogin       = "auth/login/"
	pathRegister    = "auth/register/"
	pathSearches    = "searches/"
	pathAppSettings = "app-settings/me/"
)

// Operation names reported in errors.
const (
	opLogin          = "login"
	opRegister       = "register"
	opSearch         = "search"
	opFetchSettings  = "fetch settings"
	opUpdateSettings = "update settings"
)

const maxResponseBody = 8 << 20

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the API root, DefaultBaseURL when empty
	BaseURL string

	// UserAgent is the User-Agent header to use in HTTP requests
	UserAgent string

	// HTTPTrace receives a dump of every exchange when not nil
	HTTPTrace io.Writer

	// Timeout bounds every request, 30 seconds when zero
	Timeout time.Duration

	// Transport is the base transport, http.DefaultTransport when nil
	Transport http.RoundTripper
}

// Client talks to the MedMatch backend. It holds no credentials: every
// authenticated call takes the Session explicitly.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

// NewClient creates a client from options. A nil options uses the defaults.
func NewClient(options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}

	base := options.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", base, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", base)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	userAgent := "medmatch/unknown"
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := httputils.NewTransport(options.Transport, map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	}, options.HTTPTrace)

	return &Client{
		baseURL: u,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	u.RawQuery = query.Encode()

	return u.String()
}

// call describes one exchange with the backend.
type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	session *Session
	in      any
	out     any
	want    []int
}

func (c *Client) do(ctx context.Context, cl call) error {
	var body io.Reader

	if cl.in != nil {
		b, err := json.Marshal(cl.in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", cl.op, err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl.path, cl.query), body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", cl.op, err)
	}

	if cl.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if cl.session != nil {
		cl.session.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Type: ErrorTypeTransport, Op: cl.op, Err: err}
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &NetworkError{Type: ErrorTypeTransport, Op: cl.op, StatusCode: resp.StatusCode, Err: err}
	}

	want := cl.want
	if len(want) == 0 {
		want = []int{http.StatusOK}
	}

	if !slices.Contains(want, resp.StatusCode) {
		return statusError(cl.op, resp.StatusCode, data)
	}

	if cl.out == nil {
		return nil
	}

	if err := json.Unmarshal(data, cl.out); err != nil {
		return &NetworkError{Type: ErrorTypeDecode, Op: cl.op, StatusCode: resp.StatusCode, Err: err}
	}

	return nil
}
