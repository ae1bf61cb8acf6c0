package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the backend, carrying the server's
// structured error payload when one was present.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Body    []byte `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// newAPIError builds an APIError from a response body, decoding the
// server's error payload when it parses.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: body}
	if len(body) > 0 {
		_ = json.Unmarshal(body, e)
	}
	return e
}

// IsNotFound reports whether err is an APIError with HTTP 404. Callers
// that treat absence as a valid empty result branch on this instead of
// propagating the error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// StatusOf returns the HTTP status carried by err, or 0 for transport
// failures that never produced a response.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
