package models

import (
	"errors"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
)

// ErrorEvent is a persisted [resilience.Event].
type ErrorEvent struct {
	id        string
	sequence  int
	event     resilience.Event
	createdAt time.Time
	updatedAt time.Time
}

// NewErrorEvent wraps e for persistence. The ID is assigned by the repository.
func NewErrorEvent(sequence int, e resilience.Event) *ErrorEvent {
	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return &ErrorEvent{sequence: sequence, event: e, createdAt: now, updatedAt: now}
}

func (m *ErrorEvent) ID() string { return m.id }
func (m *ErrorEvent) Sequence() int { return m.sequence }
func (m *ErrorEvent) CreatedAt() time.Time { return m.createdAt }
func (m *ErrorEvent) UpdatedAt() time.Time { return m.updatedAt }
func (m *ErrorEvent) Event() resilience.Event { return m.event }
func (m *ErrorEvent) Kind() resilience.Kind { return m.event.Kind }
func (m *ErrorEvent) Context() string { return m.event.Context }
func (m *ErrorEvent) OccurredAt() time.Time { return m.event.Timestamp }
func (m *ErrorEvent) Record() *resilience.Record { return m.event.Record() }

func (m *ErrorEvent) SetID(id string) { m.id = id }
func (m *ErrorEvent) SetSequence(seq int) { m.sequence = seq }
func (m *ErrorEvent) SetCreatedAt(t time.Time) { m.createdAt = t }
func (m *ErrorEvent) SetUpdatedAt(t time.Time) { m.updatedAt = t }
func (m *ErrorEvent) SetContext(context string) { m.event.Context = context }

// Validate checks that the event carries enough to be displayed and replayed.
func (m *ErrorEvent) Validate() error {
	var errs []error
	if m.event.Message == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if m.event.UserMessage == "" {
		errs = append(errs, errors.New("user message is required"))
	}
	if m.event.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	return errors.Join(errs...)
}
