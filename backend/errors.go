// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNetworkFailure is matched by every *NetworkError.
var ErrNetworkFailure = errors.New("network failure")

// ErrorType classifies backend failures.
type ErrorType int

const (
	// ErrorTypeTransport: the request never got an HTTP answer.
	ErrorTypeTransport ErrorType = iota
	// ErrorTypeStatus: the backend answered with an unexpected status.
	ErrorTypeStatus
	// ErrorTypeDecode: the answer could not be decoded.
	ErrorTypeDecode
	// ErrorTypeUnauthorized: the credentials or the session were rejected.
	ErrorTypeUnauthorized
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeStatus:
		return "status"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// NetworkError is a failed exchange with the backend.
type NetworkError struct {
	Type       ErrorType
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Op)

	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status %d", e.StatusCode)
	}

	if e.Body != "" {
		fmt.Fprintf(&sb, ": %s", e.Body)
	}

	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}

	return sb.String()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNetworkFailure) hold.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// IsUnauthorized reports whether err is a rejected session or credential.
func IsUnauthorized(err error) bool {
	var netErr *NetworkError

	return errors.As(err, &netErr) && netErr.Type == ErrorTypeUnauthorized
}

const maxErrorBody = 256

func statusError(op string, status int, body []byte) *NetworkError {
	typ := ErrorTypeStatus
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		typ = ErrorTypeUnauthorized
	}

	b := strings.TrimSpace(string(body))
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody] + "…"
	}

	return &NetworkError{Type: typ, Op: op, StatusCode: status, Body: b}
}

// UserMessage renders err as the short message shown to the user. It never
// includes response bodies or transport internals.
func UserMessage(err error) string {
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		if err == nil {
			return ""
		}

		return err.Error()
	}

	switch netErr.Type {
	case ErrorTypeTransport:
		return "Could not reach the MedMatch server. Check your connection and try again."
	case ErrorTypeUnauthorized:
		if netErr.Op == opLogin {
			return "Invalid email or password."
		}

		return "Your session is not valid. Please log in again."
	case ErrorTypeDecode:
		return "The MedMatch server sent an unexpected answer. Please try again."
	default:
		if netErr.StatusCode >= http.StatusInternalServerError {
			return "The MedMatch server is having trouble. Please try again later."
		}

		return fmt.Sprintf("The request was rejected (%d). Please check your input.", netErr.StatusCode)
	}
}
