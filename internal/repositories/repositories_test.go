package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(kind resilience.Kind, label string) resilience.Event {
	rec := resilience.Normalize(&resilience.HTTPError{Service: "spotify", Status: 503, Message: "upstream down"}, kind, nil)
	return resilience.EventFrom(rec, label)
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "error_events")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}

func TestErrorEventRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		m := models.NewErrorEvent(0, testEvent(resilience.KindServer, "spotify.playlists"))

		if err := repo.Create(m); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
		if m.ID() == "" || m.Sequence() != 1 {
			t.Fatalf("expected id and sequence to be assigned, got %q/%d", m.ID(), m.Sequence())
		}

		got, err := repo.Get(m.ID())
		if err != nil {
			t.Fatalf("failed to get event: %v", err)
		}

		e := got.Event()
		if e.Kind != resilience.KindServer || e.Context != "spotify.playlists" || !e.Retryable {
			t.Errorf("unexpected event: %+v", e)
		}
		if e.Details["service"] != "spotify" {
			t.Errorf("expected details to round trip, got %v", e.Details)
		}
		if !e.Timestamp.Equal(m.OccurredAt()) {
			t.Errorf("expected timestamp %v, got %v", m.OccurredAt(), e.Timestamp)
		}
	})

	t.Run("Create rejects invalid events", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		if err := repo.Create(models.NewErrorEvent(0, resilience.Event{})); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		if _, err := repo.Get("nonexistent-id"); err == nil {
			t.Fatal("expected error for missing event")
		}
	})

	t.Run("Latest", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)

		if _, err := repo.Latest(); !errors.Is(err, shared.ErrNoEvents) {
			t.Fatalf("expected ErrNoEvents, got %v", err)
		}

		repo.Observe(testEvent(resilience.KindServer, "first"))
		repo.Observe(testEvent(resilience.KindNetwork, "second"))

		latest, err := repo.Latest()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if latest.Context() != "second" {
			t.Errorf("expected latest event to be second, got %s", latest.Context())
		}
		if latest.Record().Kind() != resilience.KindNetwork {
			t.Errorf("expected rebuilt record to keep its kind, got %s", latest.Record().Kind())
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		m := models.NewErrorEvent(0, testEvent(resilience.KindServer, "before"))
		if err := repo.Create(m); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}

		m.SetContext("after")
		if err := repo.Update(m); err != nil {
			t.Fatalf("failed to update event: %v", err)
		}

		got, _ := repo.Get(m.ID())
		if got.Context() != "after" {
			t.Errorf("expected context after, got %s", got.Context())
		}

		missing := models.NewErrorEvent(0, testEvent(resilience.KindServer, "x"))
		missing.SetID("nope")
		if err := repo.Update(missing); err == nil {
			t.Error("expected error updating a missing event")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		m := models.NewErrorEvent(0, testEvent(resilience.KindServer, "gone"))
		if err := repo.Create(m); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}

		if err := repo.Delete(m.ID()); err != nil {
			t.Fatalf("failed to delete event: %v", err)
		}
		if _, err := repo.Get(m.ID()); err == nil {
			t.Error("expected event to be gone")
		}
		if err := repo.Delete(m.ID()); err == nil {
			t.Error("expected error deleting twice")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		repo.Observe(testEvent(resilience.KindServer, "spotify.playlists"))
		repo.Observe(testEvent(resilience.KindNetwork, "ytmusic.search"))
		repo.Observe(testEvent(resilience.KindServer, "ytmusic.search"))

		tc := []struct {
			name     string
			criteria map[string]any
			want     int
		}{
			{name: "all", criteria: map[string]any{}, want: 3},
			{name: "by kind", criteria: map[string]any{"kind": resilience.KindServer}, want: 2},
			{name: "by kind name", criteria: map[string]any{"kind": "network"}, want: 1},
			{name: "by context", criteria: map[string]any{"context": "ytmusic.search"}, want: 2},
			{name: "limit", criteria: map[string]any{"limit": 1}, want: 1},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				events, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(events) != tt.want {
					t.Errorf("expected %d events, got %d", tt.want, len(events))
				}
			})
		}

		events, _ := repo.List(nil)
		if events[0].Sequence() < events[len(events)-1].Sequence() {
			t.Error("expected newest first")
		}

		if _, err := repo.List(map[string]any{"kind": "TEAPOT"}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Observe from a guard", func(t *testing.T) {
		repo := NewErrorEventRepository(setupTestDB(t), nil)
		g := resilience.NewGuard(nil, repo)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resilience.Wrap(t.Context(), g, "transfer.search", func(ctx context.Context) (int, error) {
					return 0, errors.New("connection reset")
				}, nil)
			}()
		}
		wg.Wait()

		events, err := repo.List(map[string]any{"context": "transfer.search"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 4 {
			t.Errorf("expected 4 recorded events, got %d", len(events))
		}
	})

	t.Run("Observe logs storage failures", func(t *testing.T) {
		db := setupTestDB(t)
		var buf bytes.Buffer
		repo := NewErrorEventRepository(db, shared.NewLogger(&buf))
		db.Close()

		repo.Observe(resilience.Event{Kind: resilience.KindServer, Message: "m", UserMessage: "u", Timestamp: time.Now()})
		if !strings.Contains(buf.String(), "failed to record error event") {
			t.Errorf("expected failure to be logged, got %q", buf.String())
		}
	})
}
