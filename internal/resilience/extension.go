package resilience

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrExtensionName      = errors.New("extension name must not be empty")
	ErrDuplicateExtension = errors.New("extension already registered")
)

// Extension lets one upstream integration refine classification and normalization.
//
// Every method must be pure. An extension is consulted only for raw failures whose sub-code it recognizes,
// so several extensions can be registered side by side without interfering.
type Extension interface {
	// Name identifies the integration, e.g. "spotify".
	Name() string
	// SubCode extracts an integration-specific identifier from raw.
	SubCode(raw any) (string, bool)
	// UserMessage returns a display message overriding the kind default.
	UserMessage(subCode string) (string, bool)
	// Retryable returns a retryability overriding the kind default.
	Retryable(subCode string) (bool, bool)
	// RetryAfter extracts an explicit wait hint from raw.
	RetryAfter(raw any) (time.Duration, bool)
}

// Bundle is an [Extension] assembled from plain functions and lookup tables.
type Bundle struct {
	Integration       string
	ExtractSubCode    func(raw any) (string, bool)
	Messages          map[string]string
	RetryOverrides    map[string]bool
	ExtractRetryAfter func(raw any) (time.Duration, bool)
}

var _ Extension = (*Bundle)(nil)

func (b *Bundle) Name() string { return b.Integration }

func (b *Bundle) SubCode(raw any) (string, bool) {
	if b.ExtractSubCode == nil {
		return "", false
	}
	return b.ExtractSubCode(raw)
}

func (b *Bundle) UserMessage(subCode string) (string, bool) {
	msg, ok := b.Messages[subCode]
	return msg, ok
}

func (b *Bundle) Retryable(subCode string) (bool, bool) {
	retry, ok := b.RetryOverrides[subCode]
	return retry, ok
}

func (b *Bundle) RetryAfter(raw any) (time.Duration, bool) {
	if b.ExtractRetryAfter == nil {
		return 0, false
	}
	return b.ExtractRetryAfter(raw)
}

// Registry holds extensions keyed by integration name, in registration order.
//
// A nil *Registry is valid and behaves as an empty one.
type Registry struct {
	mu    sync.RWMutex
	order []Extension
	names map[string]struct{}
}

// NewRegistry creates a registry with exts registered in order. It panics on invalid or duplicate names,
// which are programming errors at wiring time.
func NewRegistry(exts ...Extension) *Registry {
	r := &Registry{names: make(map[string]struct{})}
	for _, ext := range exts {
		if err := r.Register(ext); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds ext. Names must be unique and non-empty.
func (r *Registry) Register(ext Extension) error {
	name := ext.Name()
	if name == "" {
		return ErrExtensionName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, name)
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, ext)
	return nil
}

// Lookup returns the extension registered under name.
func (r *Registry) Lookup(name string) (Extension, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ext := range r.order {
		if ext.Name() == name {
			return ext, true
		}
	}
	return nil, false
}

// Names lists registered integration names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	for i, ext := range r.order {
		names[i] = ext.Name()
	}
	return names
}

// Match returns the first extension that recognizes a sub-code in raw.
func (r *Registry) Match(raw any) (Extension, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ext := range r.order {
		if _, ok := ext.SubCode(raw); ok {
			return ext, true
		}
	}
	return nil, false
}

// Normalize classifies raw and builds its [Record], applying the matching extension if there is one.
func (r *Registry) Normalize(raw any) *Record {
	s := inspect(raw)
	ext, _ := r.Match(raw)
	return build(raw, s, s.kind(), ext, time.Now())
}

var (
	reRetryAfter = regexp.MustCompile(`(?i)retry[_\-\s]?after[_\-\s]*[:=]?\s*(\d+(?:\.\d+)?)\s*(ms|milliseconds?|seconds?|secs?|s)?\b`)
	reTryAgainIn = regexp.MustCompile(`(?i)(?:re)?try[_\-\s]+(?:again[_\-\s]+)?in[_\-\s]+(\d+(?:\.\d+)?)\s*(ms|milliseconds?|seconds?|secs?|s)?\b`)
)

// ParseRetryAfter reads a wait hint from a Retry-After header value (delay seconds or HTTP-date)
// or from free text such as "retry after 30 seconds" or "try again in 500ms".
func ParseRetryAfter(text string) (time.Duration, bool) {
	return parseRetryAfterAt(text, time.Now())
}

func parseRetryAfterAt(text string, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(text)
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}

	for _, re := range []*regexp.Regexp{reRetryAfter, reTryAgainIn} {
		m := re.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := time.Second
		if strings.HasPrefix(strings.ToLower(m[2]), "m") {
			unit = time.Millisecond
		}
		return time.Duration(n * float64(unit)), true
	}

	return 0, false
}
