package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	th "github.com/desertthunder/playsync/internal/testing"
	"golang.org/x/time/rate"
)

func sourcePlaylist() *services.PlaylistExport {
	return &services.PlaylistExport{
		Playlist: services.Playlist{ID: "playlist123", Name: "My Spotify Playlist"},
		Tracks: []services.Track{
			{ID: "track1", Title: "Song 1", Artist: "Artist 1"},
			{ID: "track2", Title: "Song 2", Artist: "Artist 2"},
		},
	}
}

func matches(titles ...string) map[string]*services.Track {
	m := make(map[string]*services.Track)
	for i, title := range titles {
		artist := "Artist " + title[len(title)-1:]
		m[services.NormalizeTrackKey(title, artist)] = &services.Track{ID: "yt" + string(rune('1'+i)), Title: title, Artist: artist}
	}
	return m
}

type eventLog struct {
	events []resilience.Event
}

func (l *eventLog) Observe(e resilience.Event) { l.events = append(l.events, e) }

func newTestEngine(spotify, youtube services.Service, sink resilience.Sink) *PlaylistEngine {
	engine := resilience.NewEngine(
		resilience.NewRegistry(services.Extensions()...),
		resilience.WithWaiter(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
	return NewPlaylistEngine(spotify, youtube, resilience.NewGuard(engine, sink),
		WithPolicy(resilience.DefaultPolicy()),
		WithSearchLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func TestPlaylistEngine_Run(t *testing.T) {
	tests := []struct {
		name        string
		sourceID    string
		spotify     *th.MockService
		youtube     *th.MockService
		wantErr     error
		wantKind    resilience.Kind
		wantSuccess int
		wantFailed  int
		wantErrors  int
	}{
		{
			name:        "successful transfer by ID",
			sourceID:    "playlist123",
			spotify:     &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube:     &th.MockService{Matches: matches("Song 1", "Song 2")},
			wantSuccess: 2,
		},
		{
			name:     "successful transfer by name",
			sourceID: "My Spotify Playlist",
			spotify: &th.MockService{
				Playlists: []services.Playlist{{ID: "playlist123", Name: "My Spotify Playlist"}},
				Exports:   map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()},
			},
			youtube:     &th.MockService{Matches: matches("Song 1")},
			wantSuccess: 1,
			wantFailed:  1,
		},
		{
			name:     "unknown playlist",
			sourceID: "nothing",
			spotify:  &th.MockService{Exports: map[string]*services.PlaylistExport{}},
			youtube:  &th.MockService{},
			wantKind: resilience.KindNotFound,
		},
		{
			name:       "no matches",
			sourceID:   "playlist123",
			spotify:    &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube:    &th.MockService{},
			wantErr:    ErrNothingMatched,
			wantFailed: 2,
		},
		{
			name:     "transient search failure is retried",
			sourceID: "playlist123",
			spotify:  &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube: &th.MockService{
				Matches:    matches("Song 1", "Song 2"),
				SearchErrs: []error{&resilience.HTTPError{Service: services.YouTubeIntegration, Status: 503}},
			},
			wantSuccess: 2,
		},
		{
			name:     "permanent search failure is recorded and skipped",
			sourceID: "playlist123",
			spotify:  &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube: &th.MockService{
				Matches:    matches("Song 1", "Song 2"),
				SearchErrs: []error{&resilience.HTTPError{Service: services.YouTubeIntegration, Status: 400, Message: "bad query"}},
			},
			wantSuccess: 1,
			wantFailed:  1,
			wantErrors:  1,
		},
		{
			name:     "quota exhaustion stops the transfer",
			sourceID: "playlist123",
			spotify:  &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube: &th.MockService{
				SearchErr: &resilience.HTTPError{Service: services.YouTubeIntegration, Status: 403, Message: "quota exceeded"},
			},
			wantKind:   resilience.KindAuthorization,
			wantFailed: 1,
			wantErrors: 1,
		},
		{
			name:     "import failure",
			sourceID: "playlist123",
			spotify:  &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}},
			youtube: &th.MockService{
				Matches:   matches("Song 1", "Song 2"),
				ImportErr: &resilience.HTTPError{Service: services.YouTubeIntegration, Status: 500},
			},
			wantKind:    resilience.KindServer,
			wantSuccess: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(tt.spotify, tt.youtube, nil)
			result, err := engine.Run(context.Background(), tt.sourceID, nil)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantKind != resilience.KindUnknown:
				var rec *resilience.Record
				if !errors.As(err, &rec) {
					t.Fatalf("expected a Record, got %v", err)
				}
				if rec.Kind() != tt.wantKind {
					t.Fatalf("expected kind %s, got %s", tt.wantKind, rec.Kind())
				}
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}

			if result == nil {
				return
			}
			if result.SuccessCount != tt.wantSuccess {
				t.Errorf("expected %d successes, got %d", tt.wantSuccess, result.SuccessCount)
			}
			if result.FailedCount != tt.wantFailed {
				t.Errorf("expected %d failures, got %d", tt.wantFailed, result.FailedCount)
			}
			if result.ErrorCount != tt.wantErrors {
				t.Errorf("expected %d errored searches, got %d", tt.wantErrors, result.ErrorCount)
			}
		})
	}

	t.Run("creates private playlist with matched tracks", func(t *testing.T) {
		youtube := &th.MockService{Matches: matches("Song 1")}
		spotify := &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}}

		result, err := newTestEngine(spotify, youtube, nil).Run(context.Background(), "playlist123", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DestPlaylist == nil || result.MatchPercentage != 50 {
			t.Errorf("unexpected result %+v", result)
		}
		if len(youtube.Received) != 1 {
			t.Fatalf("expected one import, got %d", len(youtube.Received))
		}
		imported := youtube.Received[0]
		if imported.Playlist.Public || len(imported.Tracks) != 1 || imported.Tracks[0].ID != "yt1" {
			t.Errorf("unexpected import %+v", imported)
		}
	})

	t.Run("failed searches are observed", func(t *testing.T) {
		sink := &eventLog{}
		youtube := &th.MockService{
			Matches:    matches("Song 2"),
			SearchErrs: []error{errors.New("validation failed: empty title")},
		}
		spotify := &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}}

		result, err := newTestEngine(spotify, youtube, sink).Run(context.Background(), "playlist123", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TrackMatches[0].Err == nil || result.TrackMatches[0].Err.Kind() != resilience.KindValidation {
			t.Errorf("expected a validation record on the first track, got %+v", result.TrackMatches[0])
		}
		if len(sink.events) != 1 || sink.events[0].Context != "transfer.search" {
			t.Errorf("expected one transfer.search event, got %+v", sink.events)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		spotify := &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestEngine(spotify, &th.MockService{}, nil).Run(ctx, "playlist123", nil)

		var rec *resilience.Record
		if !errors.As(err, &rec) || rec.Kind() != resilience.KindCancelled {
			t.Fatalf("expected a cancelled record, got %v", err)
		}
	})

	t.Run("missing services", func(t *testing.T) {
		_, err := NewPlaylistEngine(nil, nil, nil).Run(context.Background(), "x", nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		progress := make(chan ProgressUpdate, 32)
		spotify := &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}}
		youtube := &th.MockService{Matches: matches("Song 1", "Song 2")}

		if _, err := newTestEngine(spotify, youtube, nil).Run(context.Background(), "playlist123", progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		phases := map[Phase]int{}
		for u := range progress {
			phases[u.Phase]++
		}
		if phases[FetchSource] != 2 || phases[SearchTracks] != 3 || phases[CreatePlaylist] != 2 {
			t.Errorf("unexpected phase counts %v", phases)
		}
	})

	t.Run("full progress channel never blocks", func(t *testing.T) {
		progress := make(chan ProgressUpdate)
		spotify := &th.MockService{Exports: map[string]*services.PlaylistExport{"playlist123": sourcePlaylist()}}
		youtube := &th.MockService{Matches: matches("Song 1", "Song 2")}

		if _, err := newTestEngine(spotify, youtube, nil).Run(context.Background(), "playlist123", progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestPlaylistEngine_Diff(t *testing.T) {
	source := &th.MockService{ServiceName: "Spotify", Exports: map[string]*services.PlaylistExport{"src": {
		Playlist: services.Playlist{ID: "src"},
		Tracks: []services.Track{
			{Title: "Song 1", Artist: "Artist 1", ISRC: "ISRC1"},
			{Title: "Song  Two", Artist: "artist 2"},
			{Title: "Song 3", Artist: "Artist 3"},
		},
	}}}
	dest := &th.MockService{ServiceName: "YouTube Music", Exports: map[string]*services.PlaylistExport{"dst": {
		Playlist: services.Playlist{ID: "dst"},
		Tracks: []services.Track{
			{Title: "Song 1 (Remastered)", Artist: "Artist 1", ISRC: "ISRC1"},
			{Title: "song two", Artist: "Artist 2"},
			{Title: "Song 4", Artist: "Artist 4"},
		},
	}}}

	engine := newTestEngine(source, dest, nil)

	t.Run("compares by ISRC and normalized key", func(t *testing.T) {
		result, err := engine.Diff(context.Background(), source, dest, "src", "dst", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		c := result.Comparison
		if c.MatchedCount != 2 {
			t.Errorf("expected 2 matches, got %d", c.MatchedCount)
		}
		if len(c.MissingInDest) != 1 || c.MissingInDest[0].Title != "Song 3" {
			t.Errorf("unexpected missing tracks %+v", c.MissingInDest)
		}
		if len(c.ExtraInDest) != 1 || c.ExtraInDest[0].Title != "Song 4" {
			t.Errorf("unexpected extra tracks %+v", c.ExtraInDest)
		}
	})

	t.Run("missing destination playlist", func(t *testing.T) {
		_, err := engine.Diff(context.Background(), source, dest, "src", "nope", nil)

		var rec *resilience.Record
		if !errors.As(err, &rec) || rec.Kind() != resilience.KindNotFound {
			t.Fatalf("expected a not found record, got %v", err)
		}
	})

	t.Run("nil service", func(t *testing.T) {
		if _, err := engine.Diff(context.Background(), nil, dest, "src", "dst", nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
