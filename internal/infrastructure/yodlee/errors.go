package yodlee

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures for the caller's retry policy.
type ErrorKind string

const (
	// KindAuth means the credential is invalid even after one refresh; the
	// user must re-link the connection.
	KindAuth ErrorKind = "auth"
	// KindTransient covers network failures, rate limiting and 5xx responses.
	KindTransient ErrorKind = "transient"
	// KindRequest covers every other non-2xx response.
	KindRequest ErrorKind = "request"
)

// Provider error codes that indicate a missing, invalid or expired token.
var authErrorCodes = map[string]struct{}{
	"Y007": {},
	"Y008": {},
	"Y016": {},
	"Y020": {},
	"Y023": {},
}

// APIError is returned for every failed provider call.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Reference  string
	Kind       ErrorKind
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yodlee %s: %s error: %v", e.Op, e.Kind, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("yodlee %s: %s error (status %d): %s - %s", e.Op, e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("yodlee %s: %s error (status %d)", e.Op, e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorResponse is the provider's error body.
type errorResponse struct {
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
	ReferenceCode string `json:"referenceCode"`
}

func classify(status int, code string) ErrorKind {
	if _, ok := authErrorCodes[code]; ok {
		return KindAuth
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindRequest
	}
}

// IsAuthError reports whether err is a provider authorization failure.
func IsAuthError(err error) bool {
	return hasKind(err, KindAuth)
}

// IsTransient reports whether err is a provider failure worth retrying later.
func IsTransient(err error) bool {
	return hasKind(err, KindTransient)
}

func hasKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}
