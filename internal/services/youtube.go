// YouTube Music API [Service] implementation
//
// Communicates with the FastAPI proxy server (music/) running on port 8080.
// The proxy wraps ytmusicapi Python library for YouTube Music operations.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
)

const (
	defaultYTBaseURL string = "http://localhost:8080"

	// YouTubeIntegration names the YouTube Music [resilience.Extension] and tags its errors.
	YouTubeIntegration = "youtube"
)

var (
	// ErrAuthFileMissing means the browser headers file the proxy authenticates with does not exist.
	ErrAuthFileMissing = errors.New("youtube auth file not found")
	// ErrProxyUnreachable means the proxy could not be reached at all.
	ErrProxyUnreachable = errors.New("music proxy connection failed")
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	Duration    string          `json:"duration"`
	DurationSec int             `json:"duration_seconds"`
	ISRC        string          `json:"isrc,omitempty"`
}

func (yt YouTubeTrack) track() Track {
	track := Track{
		ID:       yt.VideoID,
		Title:    yt.Title,
		Duration: yt.DurationSec,
		ISRC:     yt.ISRC,
	}
	if len(yt.Artists) > 0 {
		track.Artist = yt.Artists[0].Name
	}
	if yt.Album != nil {
		track.Album = yt.Album.Name
	}
	return track
}

// YouTubePlaylist represents a playlist from YouTube Music.
type YouTubePlaylist struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Privacy     string         `json:"privacy"`
	TrackCount  int            `json:"trackCount"`
	Tracks      []YouTubeTrack `json:"tracks,omitempty"`
}

func (yp *YouTubePlaylist) playlist() Playlist {
	return Playlist{
		ID:          yp.ID,
		Name:        yp.Title,
		Description: yp.Description,
		TrackCount:  yp.TrackCount,
		Public:      yp.Privacy == "PUBLIC",
	}
}

// YouTubeService implements the Service interface for YouTube Music via proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(baseURL string) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeService{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// Authenticate stores the authentication file path for subsequent requests.
//
// Expects credentials["auth_file"] to contain the path to the headers file written by `ytmusic auth`.
func (y *YouTubeService) Authenticate(ctx context.Context, credentials map[string]string) error {
	authFile := credentials["auth_file"]
	if authFile == "" {
		return fmt.Errorf("%w: missing auth_file", shared.ErrMissingCredentials)
	}

	if _, err := os.Stat(authFile); err != nil {
		return fmt.Errorf("%w: %s", ErrAuthFileMissing, authFile)
	}

	y.authFile = authFile
	return nil
}

func (y *YouTubeService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := y.baseURL + endpoint

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrProxyUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &resilience.HTTPError{
			Service: YouTubeIntegration,
			Status:  resp.StatusCode,
			Fields:  resilience.HeaderFields(resp.Header, "Retry-After"),
		}
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp); err == nil {
			he.Message = errResp.Detail
		}
		return he
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Ping checks that the proxy is up. Calls GET /health.
func (y *YouTubeService) Ping(ctx context.Context) error {
	return y.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}

// GetPlaylists retrieves all playlists for the authenticated user.
//
// Calls GET /api/library/playlists on the proxy.
func (y *YouTubeService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var ytPlaylists []struct {
		PlaylistID  string `json:"playlistId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Privacy     string `json:"privacy"`
		Count       int    `json:"count"`
	}

	if err := y.doRequest(ctx, http.MethodGet, "/api/library/playlists", nil, &ytPlaylists); err != nil {
		return nil, err
	}

	playlists := make([]Playlist, len(ytPlaylists))
	for i, ytp := range ytPlaylists {
		playlists[i] = Playlist{
			ID:          ytp.PlaylistID,
			Name:        ytp.Title,
			Description: ytp.Description,
			TrackCount:  ytp.Count,
			Public:      ytp.Privacy == "PUBLIC",
		}
	}

	return playlists, nil
}

func (y *YouTubeService) fetchPlaylist(ctx context.Context, playlistID string) (*YouTubePlaylist, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var yp YouTubePlaylist
	if err := y.doRequest(ctx, http.MethodGet, "/api/playlists/"+url.PathEscape(playlistID), nil, &yp); err != nil {
		return nil, err
	}
	return &yp, nil
}

// GetPlaylist retrieves a specific playlist by ID without tracks.
//
// Calls GET /api/playlists/{id} on the proxy.
func (y *YouTubeService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	yp, err := y.fetchPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	p := yp.playlist()
	return &p, nil
}

// ExportPlaylist exports a playlist with all its tracks.
//
// Calls GET /api/playlists/{id} on the proxy.
func (y *YouTubeService) ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error) {
	yp, err := y.fetchPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, len(yp.Tracks))
	for i, ytt := range yp.Tracks {
		tracks[i] = ytt.track()
	}

	return &PlaylistExport{Playlist: yp.playlist(), Tracks: tracks}, nil
}

// ImportPlaylist imports a playlist into YouTube Music.
//
// Creates the playlist via POST /api/playlists and adds tracks via POST /api/playlists/{id}/items.
func (y *YouTubeService) ImportPlaylist(ctx context.Context, playlist *PlaylistExport) (*Playlist, error) {
	createReq := struct {
		Title         string `json:"title"`
		Description   string `json:"description"`
		PrivacyStatus string `json:"privacy_status"`
	}{
		Title:         playlist.Playlist.Name,
		Description:   playlist.Playlist.Description,
		PrivacyStatus: "PRIVATE",
	}

	if playlist.Playlist.Public {
		createReq.PrivacyStatus = "PUBLIC"
	}

	var createResp struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := y.doRequest(ctx, http.MethodPost, "/api/playlists", createReq, &createResp); err != nil {
		return nil, err
	}

	videoIDs := make([]string, 0, len(playlist.Tracks))
	for _, track := range playlist.Tracks {
		if track.ID != "" {
			videoIDs = append(videoIDs, track.ID)
		}
	}

	if len(videoIDs) > 0 {
		addReq := struct {
			VideoIDs []string `json:"video_ids"`
		}{VideoIDs: videoIDs}

		endpoint := "/api/playlists/" + url.PathEscape(createResp.PlaylistID) + "/items"
		if err := y.doRequest(ctx, http.MethodPost, endpoint, addReq, nil); err != nil {
			return nil, err
		}
	}

	return &Playlist{
		ID:          createResp.PlaylistID,
		Name:        playlist.Playlist.Name,
		Description: playlist.Playlist.Description,
		TrackCount:  len(videoIDs),
		Public:      playlist.Playlist.Public,
	}, nil
}

// SearchTrack searches for a track by title and artist, returning the best match.
//
// Calls GET /api/search?q={title} {artist}&filter=songs on the proxy.
func (y *YouTubeService) SearchTrack(ctx context.Context, title, artist string) (*Track, error) {
	query := fmt.Sprintf("%s %s", title, artist)
	endpoint := fmt.Sprintf("/api/search?q=%s&filter=songs", url.QueryEscape(query))

	var results []YouTubeTrack
	if err := y.doRequest(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no results found for '%s' by '%s'", ErrNoMatch, title, artist)
	}

	track := results[0].track()
	return &track, nil
}
