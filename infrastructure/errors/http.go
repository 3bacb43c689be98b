// Package errors provides HTTP error parsing shared by outbound clients.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MinErrorStatusCode is the minimum HTTP status code considered an error.
const MinErrorStatusCode = 400

// maxErrorBody bounds how much of an error response is retained.
const maxErrorBody = 64 << 10

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
	// Parsed reports whether Message was extracted from a structured body.
	Parsed bool
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// ParseHTTPError reads resp.Body and returns an *HTTPError when the status is
// an error, or nil otherwise.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	httpErr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		httpErr.Message = fmt.Sprintf("failed to read error response body: %v", err)
		return httpErr
	}
	httpErr.Body = string(bodyBytes)

	if msg, ok := structuredMessage(bodyBytes); ok {
		httpErr.Message = msg
		httpErr.Parsed = true
		return httpErr
	}

	httpErr.Message = strings.TrimSpace(httpErr.Body)
	return httpErr
}

// structuredMessage extracts a message from the error shapes the scraper
// service emits: {"error"}, {"message"}, {"detail"} and JSON:API errors arrays.
func structuredMessage(body []byte) (string, bool) {
	var jsonErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Errors  []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &jsonErr) != nil {
		return "", false
	}

	for _, msg := range []string{jsonErr.Error, jsonErr.Message, jsonErr.Detail} {
		if msg != "" {
			return msg, true
		}
	}

	if len(jsonErr.Errors) == 0 {
		return "", false
	}

	details := make([]string, len(jsonErr.Errors))
	for i, e := range jsonErr.Errors {
		if e.Detail != "" {
			details[i] = fmt.Sprintf("%s: %s", e.Title, e.Detail)
		} else {
			details[i] = e.Title
		}
	}
	return strings.Join(details, "; "), true
}

// GetHTTPStatusCode extracts the status code from any *HTTPError in err's chain.
func GetHTTPStatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
