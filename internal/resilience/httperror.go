package resilience

import (
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is the failure shape service clients return for non-2xx responses.
//
// Fields carries auxiliary values such as response headers; keys are matched case-insensitively.
type HTTPError struct {
	Service string            // Integration that produced the response, e.g. "spotify"
	Status  int               // HTTP status code
	Message string            // Upstream message, if the body had one
	Code    string            // Upstream machine code, if any
	Fields  map[string]string // Auxiliary values (headers, reasons)
}

func (e *HTTPError) Error() string {
	prefix := "api error"
	if e.Service != "" {
		prefix = e.Service + " API error"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d): %s", prefix, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", prefix, e.Status)
}

// StatusCode returns the HTTP status.
func (e *HTTPError) StatusCode() int { return e.Status }

// ErrorCode returns the upstream machine code.
func (e *HTTPError) ErrorCode() string { return e.Code }

// Field returns an auxiliary value by case-insensitive key.
func (e *HTTPError) Field(name string) (string, bool) {
	for k, v := range e.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// HeaderFields copies the named headers out of h into a Fields map with lower-cased keys.
func HeaderFields(h http.Header, names ...string) map[string]string {
	fields := make(map[string]string, len(names))
	for _, name := range names {
		if v := h.Get(name); v != "" {
			fields[strings.ToLower(name)] = v
		}
	}
	return fields
}
