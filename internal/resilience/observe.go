package resilience

import (
	"maps"
	"time"

	"github.com/charmbracelet/log"
)

// Event is what a [Sink] receives for every failure surfaced by a [Guard].
type Event struct {
	Kind        Kind
	Code        string
	SubCode     string
	Message     string
	UserMessage string
	Retryable   bool
	Extension   string
	Timestamp   time.Time
	Context     string // Caller-supplied label, e.g. "spotify.playlists"
	Details     map[string]any
}

// EventFrom flattens rec into an [Event] tagged with label.
func EventFrom(rec *Record, label string) Event {
	return Event{
		Kind:        rec.kind,
		Code:        rec.code,
		SubCode:     rec.subCode,
		Message:     rec.message,
		UserMessage: rec.userMessage,
		Retryable:   rec.retryable,
		Extension:   rec.extension,
		Timestamp:   rec.timestamp,
		Context:     label,
		Details:     rec.Details(),
	}
}

// Record rebuilds the record an event was taken from, e.g. after reading it back from storage.
// The raw cause and any rate-limit hint are not part of an event and are not restored.
func (e Event) Record() *Record {
	return &Record{
		kind:        e.Kind,
		code:        e.Code,
		subCode:     e.SubCode,
		message:     e.Message,
		userMessage: e.UserMessage,
		retryable:   e.Retryable,
		timestamp:   e.Timestamp,
		details:     maps.Clone(e.Details),
		extension:   e.Extension,
	}
}

// Sink observes surfaced failures. Implementations must be safe for concurrent use.
// Observe has no return value; a sink that fails must swallow its own error.
type Sink interface {
	Observe(Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Event)

func (f SinkFunc) Observe(e Event) { f(e) }

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Observe(e Event) {
	for _, s := range m {
		if s != nil {
			s.Observe(e)
		}
	}
}

// LogSink writes events to a structured logger at warn level.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a [LogSink]. A nil logger uses the package default.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger.WithPrefix("resilience")}
}

func (s *LogSink) Observe(e Event) {
	kv := []any{"context", e.Context, "kind", e.Kind.String(), "retryable", e.Retryable}
	if e.Code != "" {
		kv = append(kv, "code", e.Code)
	}
	if e.SubCode != "" {
		kv = append(kv, "sub_code", e.SubCode)
	}
	s.logger.Warn(e.Message, kv...)
}
