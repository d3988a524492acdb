// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/desertthunder/playsync/internal/services"
)

// MockService is a configurable test double for [services.Service].
//
// Errors queued in the *Errs slices are returned one per call before the call succeeds, which lets tests
// script transient failures. Err fields fail every call.
type MockService struct {
	ServiceName string
	Playlists   []services.Playlist
	Exports     map[string]*services.PlaylistExport
	Matches     map[string]*services.Track // keyed by [services.NormalizeTrackKey]
	Imported    *services.Playlist

	AuthErr    error
	ListErr    error
	ExportErr  error
	ImportErr  error
	SearchErr  error
	ExportErrs []error
	SearchErrs []error

	mu       sync.Mutex
	calls    map[string]int
	Received []*services.PlaylistExport
}

var _ services.Service = (*MockService)(nil)

func (m *MockService) record(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	return m.calls[method]
}

// Calls returns how many times method was invoked.
func (m *MockService) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (m *MockService) Name() string {
	if m.ServiceName == "" {
		return "mock"
	}
	return m.ServiceName
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	m.record("Authenticate")
	return m.AuthErr
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	m.record("GetPlaylists")
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Playlists, nil
}

func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*services.Playlist, error) {
	m.record("GetPlaylist")
	export, err := m.export(playlistID)
	if err != nil {
		return nil, err
	}
	return &export.Playlist, nil
}

func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*services.PlaylistExport, error) {
	m.record("ExportPlaylist")
	return m.export(playlistID)
}

func (m *MockService) export(playlistID string) (*services.PlaylistExport, error) {
	m.mu.Lock()
	queued := pop(&m.ExportErrs)
	m.mu.Unlock()

	switch {
	case queued != nil:
		return nil, queued
	case m.ExportErr != nil:
		return nil, m.ExportErr
	}
	if export, ok := m.Exports[playlistID]; ok {
		return export, nil
	}
	return nil, NotFound(playlistID)
}

func (m *MockService) ImportPlaylist(ctx context.Context, playlist *services.PlaylistExport) (*services.Playlist, error) {
	m.record("ImportPlaylist")
	if m.ImportErr != nil {
		return nil, m.ImportErr
	}

	m.mu.Lock()
	m.Received = append(m.Received, playlist)
	m.mu.Unlock()

	if m.Imported != nil {
		return m.Imported, nil
	}
	return &services.Playlist{ID: "imported", Name: playlist.Playlist.Name, TrackCount: len(playlist.Tracks)}, nil
}

func (m *MockService) SearchTrack(ctx context.Context, title, artist string) (*services.Track, error) {
	m.record("SearchTrack")

	m.mu.Lock()
	queued := pop(&m.SearchErrs)
	m.mu.Unlock()

	switch {
	case queued != nil:
		return nil, queued
	case m.SearchErr != nil:
		return nil, m.SearchErr
	}
	if track, ok := m.Matches[services.NormalizeTrackKey(title, artist)]; ok {
		return track, nil
	}
	return nil, fmt.Errorf("%w: %s by %s", services.ErrNoMatch, title, artist)
}

// NotFound is the 404 a mock returns for an unknown playlist.
func NotFound(id string) error {
	return &statusError{status: 404, msg: fmt.Sprintf("playlist %s not found", id)}
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) StatusCode() int { return e.status }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}
