// Package errors provides error helpers for the HTTP collaborators of the view agent.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 4096

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// Temporary reports whether the status suggests a retry may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ParseHTTPError converts a response with status >= 400 into an *HTTPError.
// It returns nil for successful responses. The body is read but not closed.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Message:    fmt.Sprintf("read error response body: %v", err),
		}
	}

	bodyStr := string(bodyBytes)
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       bodyStr,
		Message:    bodyStr,
	}

	// PostgREST style {"message": ..., "hint": ...} or plain {"error": ...}
	var jsonErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	}
	if json.Unmarshal(bodyBytes, &jsonErr) == nil {
		switch {
		case jsonErr.Message != "" && jsonErr.Hint != "":
			httpErr.Message = jsonErr.Message + " (" + jsonErr.Hint + ")"
		case jsonErr.Message != "":
			httpErr.Message = jsonErr.Message
		case jsonErr.Error != "":
			httpErr.Message = jsonErr.Error
		}
	}

	return httpErr
}

// GetHTTPStatusCode extracts the HTTP status code from an error chain.
func GetHTTPStatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
