// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package pollinations

import (
	"errors"
	"fmt"
	"net/http"
)

// Error variables for common transport failures.
var (
	// ErrRateLimited indicates the service returned HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerError indicates a 5xx response from the service.
	ErrServerError = errors.New("server error")

	// ErrBadRequest indicates the service rejected the request (4xx other
	// than 429).
	ErrBadRequest = errors.New("bad request")

	// ErrEmptyResponse indicates a well-formed response carried no content.
	ErrEmptyResponse = errors.New("empty response")

	// ErrUnhealthy indicates the health probe failed.
	ErrUnhealthy = errors.New("service unhealthy")
)

// APIError represents an error response from the service.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("API error (HTTP %d)", e.Status)
}

// Is allows APIError to be matched against the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrServerError:
		return e.Status >= 500
	case ErrBadRequest:
		return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
	}
	return false
}

// statusError converts an HTTP error response into a typed error.
func statusError(status int, body []byte) error {
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	return &APIError{Status: status, Detail: detail}
}

// FriendlyMessage maps an error to a short human-readable category while
// keeping the raw detail available via the error chain.
func FriendlyMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "The service is busy right now. Please try again shortly."
	case errors.Is(err, ErrServerError):
		return "The service hit an internal problem. Please try again."
	case errors.Is(err, ErrBadRequest):
		return "The request was rejected by the service."
	case errors.Is(err, ErrEmptyResponse):
		return "The model returned an empty response."
	case errors.Is(err, ErrUnhealthy):
		return "The service appears to be unreachable."
	default:
		return "There was a connectivity issue. Check your network and try again."
	}
}
