package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
)

const errorEventColumns = `id, seq, kind, code, sub_code, message, user_message, retryable, extension, context, details,
	occurred_at, created_at, updated_at`

// ErrorEventRepository implements [models.Repository] for [models.ErrorEvent] persistence.
//
// It is also a [resilience.Sink], so a guard can record every surfaced failure directly.
type ErrorEventRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var (
	_ models.Repository[*models.ErrorEvent] = (*ErrorEventRepository)(nil)
	_ resilience.Sink                       = (*ErrorEventRepository)(nil)
)

// NewErrorEventRepository creates a new [ErrorEventRepository]. Observe failures are logged to logger when it is non-nil.
func NewErrorEventRepository(db *sql.DB, logger *log.Logger) *ErrorEventRepository {
	return &ErrorEventRepository{db: db, logger: logger}
}

// Observe persists e. Storage failures are logged and otherwise ignored.
func (r *ErrorEventRepository) Observe(e resilience.Event) {
	if err := r.Create(models.NewErrorEvent(0, e)); err != nil && r.logger != nil {
		r.logger.Error("failed to record error event", "context", e.Context, "kind", e.Kind.String(), "err", err)
	}
}

// Create inserts a new event with a generated ID and sequence.
func (r *ErrorEventRepository) Create(m *models.ErrorEvent) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "error_events")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	e := m.Event()

	details, err := json.Marshal(e.Details)
	if err != nil || e.Details == nil {
		details = []byte("{}")
	}

	query := `
		INSERT INTO error_events (` + errorEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, id, sequence, e.Kind.String(), e.Code, e.SubCode, e.Message, e.UserMessage, e.Retryable,
		e.Extension, e.Context, string(details), e.Timestamp, m.CreatedAt(), m.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert error event: %w", err)
	}

	m.SetID(id)
	m.SetSequence(sequence)
	return nil
}

// Get retrieves an event by ID.
func (r *ErrorEventRepository) Get(id string) (*models.ErrorEvent, error) {
	row := r.db.QueryRow(`SELECT `+errorEventColumns+` FROM error_events WHERE id = ?`, id)
	m, err := scanErrorEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error event not found: %s", id)
	}
	return m, err
}

// Latest returns the most recently recorded event.
func (r *ErrorEventRepository) Latest() (*models.ErrorEvent, error) {
	row := r.db.QueryRow(`SELECT ` + errorEventColumns + ` FROM error_events ORDER BY seq DESC LIMIT 1`)
	m, err := scanErrorEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNoEvents
	}
	return m, err
}

// Update rewrites the event's context label. The normalized failure itself is immutable.
func (r *ErrorEventRepository) Update(m *models.ErrorEvent) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	result, err := r.db.Exec(`UPDATE error_events SET context = ?, updated_at = ? WHERE id = ?`, m.Context(), now, m.ID())
	if err != nil {
		return fmt.Errorf("failed to update error event: %w", err)
	}
	if err := expectRow(result, m.ID()); err != nil {
		return err
	}

	m.SetUpdatedAt(now)
	return nil
}

// Delete removes an event by ID.
func (r *ErrorEventRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM error_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete error event: %w", err)
	}
	return expectRow(result, id)
}

// List retrieves events newest first.
//
// Supported criteria: "kind" ([resilience.Kind] or its name), "context" (string) and "limit" (int).
func (r *ErrorEventRepository) List(criteria map[string]any) ([]*models.ErrorEvent, error) {
	query := `SELECT ` + errorEventColumns + ` FROM error_events WHERE 1 = 1`
	args := []any{}

	switch kind := criteria["kind"].(type) {
	case resilience.Kind:
		query += " AND kind = ?"
		args = append(args, kind.String())
	case string:
		if kind != "" {
			k, err := resilience.ParseKind(kind)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
			}
			query += " AND kind = ?"
			args = append(args, k.String())
		}
	}

	if context, ok := criteria["context"].(string); ok && context != "" {
		query += " AND context = ?"
		args = append(args, context)
	}

	query += " ORDER BY seq DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query error events: %w", err)
	}
	defer rows.Close()

	var events []*models.ErrorEvent
	for rows.Next() {
		m, err := scanErrorEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanErrorEvent(s scanner) (*models.ErrorEvent, error) {
	var (
		id, kind, details    string
		sequence             int
		e                    resilience.Event
		createdAt, updatedAt time.Time
	)

	err := s.Scan(&id, &sequence, &kind, &e.Code, &e.SubCode, &e.Message, &e.UserMessage, &e.Retryable,
		&e.Extension, &e.Context, &details, &e.Timestamp, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan error event: %w", err)
	}

	if e.Kind, err = resilience.ParseKind(kind); err != nil {
		e.Kind = resilience.KindUnknown
	}
	if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
		e.Details = nil
	}

	m := models.NewErrorEvent(sequence, e)
	m.SetID(id)
	m.SetCreatedAt(createdAt)
	m.SetUpdatedAt(updatedAt)
	return m, nil
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("error event not found: %s", id)
	}
	return nil
}
