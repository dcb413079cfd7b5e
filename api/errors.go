package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is returned by Client methods when the custodian API answers with an
// error status or an errors envelope. Requests that fail this way are never
// retried.
type Error struct {
	// Method is the HTTP request method.
	Method string `json:"method"`
	// Path is the HTTP request path.
	Path string `json:"path"`
	// Code is the HTTP status of the response.
	Code int32 `json:"code"`
	// Message contains the full text of the failure as a single string.
	Message string `json:"message"`
	// Details holds each entry of the errors envelope, as returned.
	Details []string `json:"details,omitempty"`
}

func (e Error) Error() string {
	prefix := fmt.Sprintf("%s %s responded %d", e.Method, e.Path, e.Code)
	if e.Message == "" {
		return prefix + " " + strings.ToLower(http.StatusText(int(e.Code)))
	}
	return prefix + ": " + e.Message
}

// ErrorStatusCode returns the HTTP status of an Error in err's chain, or 0.
func ErrorStatusCode(err error) int32 {
	var apiError Error
	if errors.As(err, &apiError) {
		return apiError.Code
	}
	return 0
}
