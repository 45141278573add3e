// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per request correlation id.
const RequestIDHeader = "X-Request-ID"

/////////////////////////////////////////
/// RoundTrippers

// LoggingRoundTripper adds a very primitive logging to a http transaction.
// Credentials in the Authorization header, the key query parameter and
// password or token JSON fields are masked before writing.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

var (
	authorizationRegex = regexp.MustCompile(`(?i)^(authorization:\s*\S+\s+)\S+`)
	secretFieldRegex   = regexp.MustCompile(`("(?:password|access|refresh)"\s*:\s*)"[^"]*"`)
	apiKeyParamRegex   = regexp.MustCompile(`([?&]key=)[^&\s]+`)
)

func redact(line string) string {
	line = authorizationRegex.ReplaceAllString(line, "${1}[REDACTED]")
	line = apiKeyParamRegex.ReplaceAllString(line, "${1}[REDACTED]")

	return secretFieldRegex.ReplaceAllString(line, `${1}"[REDACTED]"`)
}

// reduce the content of the lines.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 2048, 512

	for i, line := range lines {
		if i >= maxLines {
			break
		}

		lines[i] = fmt.Sprintf("%c %s", prefix, redact(line))
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = line[0:maxChars] + "…"
		}
	}

	return lines
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	dump, err := httputil.DumpRequestOut(req, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '>')
	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP response: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP response: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		_, _ = fmt.Fprintf(t.Writer, "< ERROR: [%v] %v\n", time.Since(start), err)

		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	return t.Transport.RoundTrip(req)
}

// RequestIDRoundTripper tags every outgoing request with a fresh
// X-Request-ID unless the caller already set one.
type RequestIDRoundTripper struct {
	Transport http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface.
func (t *RequestIDRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) != "" {
		return t.Transport.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, uuid.NewString())

	return t.Transport.RoundTrip(req)
}

// NewTransport stacks the round trippers used by the API clients on top of
// base (http.DefaultTransport when nil). Tracing is enabled when trace is
// not nil.
func NewTransport(base http.RoundTripper, headers map[string]string, trace io.Writer) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &LoggingRoundTripper{
		Transport: base,
		Writer:    trace,
		DumpBody:  true,
	}

	if len(headers) > 0 {
		rt = &AppendRequestHeadersRoundTripper{Transport: rt, Headers: headers}
	}

	return &RequestIDRoundTripper{Transport: rt}
}
