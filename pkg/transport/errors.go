package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a rejected response body is kept.
const maxErrorBody = 4 * 1024

// StatusError is returned when the backend answers a stream request with a
// non-success status.
type StatusError struct {
	Code   int
	Status string

	// Body is the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected status: " + e.Status
	}
	return fmt.Sprintf("unexpected status: %s: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return &StatusError{
		Code:   resp.StatusCode,
		Status: status,
		Body:   strings.TrimSpace(string(body)),
	}
}
