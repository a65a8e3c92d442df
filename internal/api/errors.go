// Package api provides the autokong backend client and its error types.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNotFound indicates the backend has no such job, audit or resource.
// Returned wrapped inside a *StatusError for 404 responses.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Code    int
	Method  string
	Path    string
	Message string // "error" field of the JSON body, or the raw body
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// StatusCode lets internal/http classify the error without string matching.
func (e *StatusError) StatusCode() int { return e.Code }

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// IsNotFound reports whether err is a 404 from the backend.
//
// Usage:
//
//	report, err := client.JobAudit(ctx, jobID)
//	if api.IsNotFound(err) {
//	    // audit was not run for this job
//	}
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// newStatusError builds a StatusError, pulling the backend's {"error": "..."}
// message out of body when present.
func newStatusError(method, path string, code int, body []byte) *StatusError {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: code, Method: method, Path: path, Message: truncateMessage(msg, maxMessageBytes)}
}

const maxMessageBytes = 300

// truncateMessage cuts msg to at most n bytes without splitting a UTF-8
// sequence.
func truncateMessage(msg string, n int) string {
	if len(msg) <= n {
		return msg
	}
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n] + "..."
}
