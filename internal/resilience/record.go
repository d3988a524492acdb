package resilience

import (
	"encoding/json"
	"maps"
	"time"
)

// Record is the normalized, immutable representation of one failure.
//
// A Record is built once at the boundary where the raw failure is first caught and is then passed by pointer
// through retries, results and recovery resolution. It has no setters.
type Record struct {
	kind          Kind
	code          string
	subCode       string
	message       string
	userMessage   string
	retryable     bool
	overridden    bool // retryable was decided by an extension
	retryAfter    time.Duration
	hasRetryAfter bool
	timestamp     time.Time
	details       map[string]any
	extension     string
	cause         error
}

// Kind returns the classified kind. Never unset.
func (r *Record) Kind() Kind { return r.kind }

// Code returns the upstream machine code, if any.
func (r *Record) Code() string { return r.code }

// SubCode returns the extension-supplied refinement, if any.
func (r *Record) SubCode() string { return r.subCode }

// Message returns the technical description. Safe for logs only.
func (r *Record) Message() string { return r.message }

// UserMessage returns wording that is safe to display.
func (r *Record) UserMessage() string { return r.userMessage }

// Retryable reports whether another attempt is sanctioned.
func (r *Record) Retryable() bool { return r.retryable }

// RetryAfter returns the explicit wait hint carried by a rate-limited failure.
func (r *Record) RetryAfter() (time.Duration, bool) { return r.retryAfter, r.hasRetryAfter }

// Timestamp returns when the record was created.
func (r *Record) Timestamp() time.Time { return r.timestamp }

// Details returns a copy of the diagnostic payload.
func (r *Record) Details() map[string]any { return maps.Clone(r.details) }

// Extension returns the name of the extension that recognized the failure, or "".
func (r *Record) Extension() string { return r.extension }

// Error implements error with the technical message.
func (r *Record) Error() string { return r.message }

// Unwrap exposes the raw error the record was built from, if there was one.
func (r *Record) Unwrap() error { return r.cause }

type recordJSON struct {
	Kind              Kind      `json:"kind"`
	Code              string    `json:"code,omitempty"`
	SubCode           string    `json:"sub_code,omitempty"`
	Message           string    `json:"message"`
	UserMessage       string    `json:"user_message"`
	Retryable         bool      `json:"retryable"`
	RetryAfterSeconds *float64  `json:"retry_after_seconds,omitempty"`
	Extension         string    `json:"extension,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// MarshalJSON encodes everything except the diagnostic details.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Kind:        r.kind,
		Code:        r.code,
		SubCode:     r.subCode,
		Message:     r.message,
		UserMessage: r.userMessage,
		Retryable:   r.retryable,
		Extension:   r.extension,
		Timestamp:   r.timestamp,
	}
	if r.hasRetryAfter {
		secs := r.retryAfter.Seconds()
		out.RetryAfterSeconds = &secs
	}
	return json.Marshal(out)
}
