// package services defines interface Service for interacting with HTTP APIs
//
// Spotify, YouTube (via proxy)
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
)

// ErrNoMatch is returned by SearchTrack when the service has no result for the query.
var ErrNoMatch = errors.New("no matching track")

// Service defines the interface for music service providers (Spotify, YouTube Music) that can export and import playlists and songs.
//
// Failed calls return a [*resilience.HTTPError] for non-2xx responses so callers can normalize them without
// knowing which provider produced them.
type Service interface {
	// Authenticate performs OAuth or header file authentication with the service.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)

	// ExportPlaylist exports a playlist with all its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error)

	// ImportPlaylist creates a new playlist and populates it with the provided tracks.
	ImportPlaylist(ctx context.Context, playlist *PlaylistExport) (*Playlist, error)

	// SearchTrack searches for a track by title and artist.
	// Returns the best match or an error if no match is found.
	SearchTrack(ctx context.Context, title, artist string) (*Track, error)

	// Name returns the name of the service (e.g., "Spotify", "YouTube Music")
	Name() string
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// PlaylistExport represents a playlist with all its tracks for migration
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// Track represents a music track from any service
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration"`       // Duration in seconds
	ISRC     string `json:"isrc,omitempty"` // International Standard Recording Code for matching
}

// Key returns the normalized "title|artist" key used to compare tracks across services.
func (t Track) Key() string {
	return NormalizeTrackKey(t.Title, t.Artist)
}

// NormalizeTrackKey lower-cases title and artist and collapses runs of whitespace.
func NormalizeTrackKey(title, artist string) string {
	norm := func(s string) string { return strings.Join(strings.Fields(strings.ToLower(s)), " ") }
	return norm(title) + "|" + norm(artist)
}

// Extensions returns the error extensions for every integration, in the order they should be registered.
func Extensions() []resilience.Extension {
	return []resilience.Extension{SpotifyErrors(), YouTubeErrors()}
}

// upstream is the part of a raw failure the integration extensions look at.
type upstream struct {
	status  int
	code    string
	message string
	fields  map[string]string
}

// upstreamFailure extracts the failure reported by service. raw may be an error wrapping a
// [*resilience.HTTPError] or a decoded JSON object carrying a "service" key.
func upstreamFailure(raw any, service string) (upstream, bool) {
	switch v := raw.(type) {
	case error:
		var he *resilience.HTTPError
		if !errors.As(v, &he) || he.Service != service {
			return upstream{}, false
		}
		return upstream{status: he.Status, code: he.Code, message: strings.ToLower(he.Message), fields: he.Fields}, true
	case map[string]any:
		if s, _ := v["service"].(string); s != service {
			return upstream{}, false
		}
		u := upstream{}
		switch n := v["status"].(type) {
		case float64:
			u.status = int(n)
		case int:
			u.status = n
		}
		u.code, _ = v["code"].(string)
		msg, _ := v["message"].(string)
		u.message = strings.ToLower(msg)
		if f, ok := v["fields"].(map[string]string); ok {
			u.fields = f
		}
		if ra, ok := v["retry_after"]; ok {
			u.fields = map[string]string{"retry-after": fmt.Sprint(ra)}
		}
		return u, true
	}
	return upstream{}, false
}

// retryAfter reads the Retry-After field, then falls back to the message text.
func (u upstream) retryAfter() (time.Duration, bool) {
	for k, v := range u.fields {
		if strings.EqualFold(k, "retry-after") {
			if d, ok := resilience.ParseRetryAfter(v); ok {
				return d, true
			}
		}
	}
	return resilience.ParseRetryAfter(u.message)
}
