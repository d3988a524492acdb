package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

const fallbackMessage = "an unexpected error occurred"

type statusCoder interface{ StatusCode() int }

type errorCoder interface{ ErrorCode() string }

// shape is the single view of a raw failure. Every probe of the raw value happens in [inspect].
type shape struct {
	record    *Record
	cancelled bool
	status    int
	hasStatus bool
	message   string
	code      string
	fields    map[string]string
	details   map[string]any
	cause     error
}

// inspect detects the shape of raw once: a [*Record], an error (optionally carrying a status or code),
// a plain string, a string-keyed map, a [fmt.Stringer], or anything else.
func inspect(raw any) shape {
	var s shape

	switch v := raw.(type) {
	case nil:
	case *Record:
		s.record = v
	case error:
		s.fromError(v)
	case string:
		s.message = v
	case map[string]any:
		s.fromMap(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = val
		}
		s.fromMap(m)
	case fmt.Stringer:
		s.message = v.String()
		s.details = map[string]any{"type": fmt.Sprintf("%T", raw)}
	default:
		s.details = map[string]any{"type": fmt.Sprintf("%T", raw), "value": fmt.Sprintf("%v", raw)}
	}

	return s
}

func (s *shape) fromError(err error) {
	var rec *Record
	if errors.As(err, &rec) {
		s.record = rec
		return
	}

	s.cause = err
	s.message = err.Error()
	s.cancelled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

	var he *HTTPError
	if errors.As(err, &he) {
		s.status, s.hasStatus = he.Status, he.Status != 0
		s.code = he.Code
		s.fields = lowerKeys(he.Fields)
		s.details = map[string]any{"status": he.Status}
		if he.Service != "" {
			s.details["service"] = he.Service
		}
		if len(s.fields) > 0 {
			s.details["fields"] = maps.Clone(s.fields)
		}
		return
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		s.status, s.hasStatus = sc.StatusCode(), sc.StatusCode() != 0
		s.details = map[string]any{"status": s.status}
	}

	var ec errorCoder
	if errors.As(err, &ec) {
		s.code = ec.ErrorCode()
	}
}

func (s *shape) fromMap(m map[string]any) {
	s.details = maps.Clone(m)

	for _, key := range []string{"status", "statusCode", "status_code"} {
		if n, ok := asInt(m[key]); ok {
			s.status, s.hasStatus = n, true
			break
		}
	}

	if msg, ok := m["message"].(string); ok && msg != "" {
		s.message = msg
	} else {
		switch e := m["error"].(type) {
		case string:
			s.message = e
		case map[string]any:
			// Spotify style: {"error": {"status": 401, "message": "..."}}
			if msg, ok := e["message"].(string); ok {
				s.message = msg
			}
			if !s.hasStatus {
				if n, ok := asInt(e["status"]); ok {
					s.status, s.hasStatus = n, true
				}
			}
		}
	}

	if code, ok := m["code"].(string); ok {
		s.code = code
	}

	for _, key := range []string{"fields", "headers"} {
		switch f := m[key].(type) {
		case map[string]string:
			s.fields = lowerKeys(f)
		case map[string]any:
			s.fields = make(map[string]string, len(f))
			for k, v := range f {
				s.fields[strings.ToLower(k)] = fmt.Sprint(v)
			}
		}
		if s.fields != nil {
			break
		}
	}
}

// text is the message the heuristics run against.
func (s shape) text() string {
	return strings.ToLower(s.message)
}

// rateLimited reports whether the raw failure asked the caller to slow down.
func (s shape) rateLimited() bool {
	if s.hasStatus && s.status == 429 {
		return true
	}
	_, ok := s.fields["retry-after"]
	return ok
}

// retryAfter extracts the wait hint from the Retry-After field, falling back to the message text.
func (s shape) retryAfter(now time.Time) (time.Duration, bool) {
	if v, ok := s.fields["retry-after"]; ok {
		if d, ok := parseRetryAfterAt(v, now); ok {
			return d, true
		}
	}
	return parseRetryAfterAt(s.message, now)
}

func (s shape) kind() Kind {
	if s.record != nil {
		return s.record.kind
	}
	if s.cancelled {
		return KindCancelled
	}
	if s.hasStatus {
		if k, ok := kindForStatus(s.status); ok {
			return k
		}
	}
	if k, ok := kindForMessage(s.text()); ok {
		return k
	}
	return KindUnknown
}

// Classify maps a raw failure of any shape to exactly one [Kind].
//
// Status codes win over message heuristics; anything unrecognised is [KindUnknown].
// Classify has no side effects and returns the same kind for the same input.
func Classify(raw any) Kind {
	return inspect(raw).kind()
}

func kindForStatus(status int) (Kind, bool) {
	switch {
	case status == 401:
		return KindAuthentication, true
	case status == 403:
		return KindAuthorization, true
	case status == 404:
		return KindNotFound, true
	case status >= 400 && status < 500:
		return KindClient, true
	case status >= 500:
		return KindServer, true
	default:
		return KindUnknown, false
	}
}

var messageRules = []struct {
	kind     Kind
	keywords []string
}{
	{KindNetwork, []string{"network", "fetch", "connection"}},
	{KindAuthentication, []string{"auth", "unauthorized", "token"}},
	{KindAuthorization, []string{"permission", "forbidden"}},
	{KindValidation, []string{"validation", "invalid"}},
	{KindNotFound, []string{"not found"}},
}

func kindForMessage(msg string) (Kind, bool) {
	if msg == "" {
		return KindUnknown, false
	}
	for _, rule := range messageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.kind, true
			}
		}
	}
	return KindUnknown, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func lowerKeys(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
