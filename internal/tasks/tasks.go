// package tasks implements playlist transfer operations between music services.
//
// The core abstraction is SyncEngine, which orchestrates playlist transfers and comparisons.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/time/rate"
)

// ErrNothingMatched is returned by Run when no source track was found on the destination service.
var ErrNothingMatched = errors.New("no tracks were matched, cannot create empty playlist")

// DefaultSearchInterval spaces out per-track searches during a transfer.
const DefaultSearchInterval = 100 * time.Millisecond

// TrackMatchResult represents the result of attempting to match a single track.
//
// Matched and Err are both nil when the search succeeded without a result.
type TrackMatchResult struct {
	Original services.Track     // Original track from source
	Matched  *services.Track    // Matched track (nil if not found)
	Err      *resilience.Record // Normalized failure of the search, if it failed
}

// TransferRunResult contains all data from a full transfer operation.
type TransferRunResult struct {
	SourcePlaylist  *services.PlaylistExport // Source playlist with tracks
	DestPlaylist    *services.Playlist       // Created destination playlist
	TrackMatches    []TrackMatchResult       // Individual track match results
	SuccessCount    int                      // Number of successfully matched tracks
	FailedCount     int                      // Number of tracks without a match
	ErrorCount      int                      // Number of searches that failed outright
	TotalTracks     int                      // Total tracks processed
	MatchPercentage float64                  // Success rate as percentage
}

// ComparisonResult contains track comparison details between two playlists.
type ComparisonResult struct {
	SourcePlaylist *services.PlaylistExport // Source playlist
	DestPlaylist   *services.PlaylistExport // Destination playlist
	MatchedCount   int                      // Tracks found in both
	MissingInDest  []services.Track         // Tracks in source but not in dest
	ExtraInDest    []services.Track         // Tracks in dest but not in source
}

// TransferDiffResult contains the results of comparing two playlists.
type TransferDiffResult struct {
	Comparison ComparisonResult
}

// SyncEngine defines operations for syncing playlists between services.
type SyncEngine interface {
	// Run performs a full Spotify → YouTube Music sync by fetching source playlist, searching for tracks and
	// creating the destination playlist.
	Run(ctx context.Context, srcID string, progress chan<- ProgressUpdate) (*TransferRunResult, error)

	// Diff compares two playlists across services by identifying matched tracks, missing tracks, and extra tracks.
	Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*TransferDiffResult, error)
}

// PlaylistEngine implements SyncEngine for playlist operations.
//
// Every remote call goes through the guard, so failures are retried under its policy and reported to its sink.
type PlaylistEngine struct {
	spotify services.Service
	youtube services.Service
	guard   *resilience.Guard
	policy  *resilience.Policy
	limiter *rate.Limiter
}

var _ SyncEngine = (*PlaylistEngine)(nil)

// EngineOption configures a [PlaylistEngine].
type EngineOption func(*PlaylistEngine)

// WithPolicy sets the retry policy for reads and searches. Imports always run once.
func WithPolicy(p resilience.Policy) EngineOption {
	return func(e *PlaylistEngine) { e.policy = &p }
}

// WithSearchLimiter replaces the limiter that throttles track searches.
func WithSearchLimiter(l *rate.Limiter) EngineOption {
	return func(e *PlaylistEngine) { e.limiter = l }
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided services. guard may be nil.
func NewPlaylistEngine(spotify, youtube services.Service, guard *resilience.Guard, opts ...EngineOption) *PlaylistEngine {
	e := &PlaylistEngine{
		spotify: spotify,
		youtube: youtube,
		guard:   guard,
		limiter: rate.NewLimiter(rate.Every(DefaultSearchInterval), 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// stopsTransfer reports whether a failed search means every remaining search will fail the same way.
func stopsTransfer(rec *resilience.Record) bool {
	switch rec.Kind() {
	case resilience.KindCancelled, resilience.KindAuthentication, resilience.KindAuthorization:
		return true
	}
	return false
}

// Run performs a full Spotify → YouTube Music playlist sync.
//
// srcID may be a playlist ID or an exact playlist name. Service failures are returned as [*resilience.Record]
// values, along with the partial result gathered so far.
func (e *PlaylistEngine) Run(ctx context.Context, srcID string, progress chan<- ProgressUpdate) (*TransferRunResult, error) {
	if e.spotify == nil || e.youtube == nil {
		return nil, fmt.Errorf("%w: Spotify and YouTube Music services are required", shared.ErrServiceUnavailable)
	}

	result := &TransferRunResult{}

	e.sendProgress(progress, fetchingSourceUpdate(1, 1))

	src := resilience.Wrap(ctx, e.guard, "transfer.source", func(ctx context.Context) (*services.PlaylistExport, error) {
		return e.resolveSource(ctx, srcID)
	}, e.policy)
	if !src.OK() {
		return nil, src.Err
	}

	srcPlaylist := src.Data
	total := len(srcPlaylist.Tracks)
	result.SourcePlaylist = srcPlaylist
	result.TotalTracks = total

	e.sendProgress(progress, foundPlaylistUpdate(1, 1, srcPlaylist))
	e.sendProgress(progress, searchTracksUpdate(0, total, nil))

	matches := make([]TrackMatchResult, 0, total)
	for i, track := range srcPlaylist.Tracks {
		e.sendProgress(progress, searchTracksUpdate(i+1, total, &track))

		match := e.search(ctx, track)
		matches = append(matches, match)

		switch {
		case match.Matched != nil:
			result.SuccessCount++
		case match.Err != nil:
			result.ErrorCount++
		}

		if match.Err != nil && stopsTransfer(match.Err) {
			result.TrackMatches = matches
			result.FailedCount = len(matches) - result.SuccessCount
			return result, match.Err
		}
	}

	result.TrackMatches = matches
	result.FailedCount = total - result.SuccessCount
	if result.TotalTracks > 0 {
		result.MatchPercentage = float64(result.SuccessCount) / float64(result.TotalTracks) * 100
	}

	if result.SuccessCount == 0 {
		return result, ErrNothingMatched
	}

	e.sendProgress(progress, createDestinationUpdate(1, 1))

	matchedTracks := make([]services.Track, 0, result.SuccessCount)
	for _, match := range matches {
		if match.Matched != nil {
			matchedTracks = append(matchedTracks, *match.Matched)
		}
	}
	destExport := &services.PlaylistExport{
		Playlist: services.Playlist{
			Name:        srcPlaylist.Playlist.Name,
			Description: fmt.Sprintf("Migrated from Spotify: %s", srcPlaylist.Playlist.Name),
			Public:      false,
		},
		Tracks: matchedTracks,
	}

	// Imports are not idempotent and run once.
	imported := resilience.Wrap(ctx, e.guard, "transfer.import", func(ctx context.Context) (*services.Playlist, error) {
		return e.youtube.ImportPlaylist(ctx, destExport)
	}, nil)
	if !imported.OK() {
		return result, imported.Err
	}

	result.DestPlaylist = imported.Data
	e.sendProgress(progress, createPlaylistUpdate(1, 1, imported.Data))
	return result, nil
}

// resolveSource exports srcID, falling back to a lookup by playlist name when no playlist has that ID.
func (e *PlaylistEngine) resolveSource(ctx context.Context, srcID string) (*services.PlaylistExport, error) {
	export, err := e.spotify.ExportPlaylist(ctx, srcID)
	if err == nil {
		return export, nil
	}
	if k := resilience.Classify(err); k != resilience.KindNotFound && k != resilience.KindClient {
		return nil, err
	}

	playlists, listErr := e.spotify.GetPlaylists(ctx)
	if listErr != nil {
		return nil, listErr
	}
	for _, pl := range playlists {
		if pl.Name == srcID {
			return e.spotify.ExportPlaylist(ctx, pl.ID)
		}
	}
	return nil, fmt.Errorf("%w: no playlist found with ID or name '%s'", shared.ErrPlaylistNotFound, srcID)
}

// search looks up one track on YouTube Music once the limiter allows it.
func (e *PlaylistEngine) search(ctx context.Context, track services.Track) TrackMatchResult {
	match := TrackMatchResult{Original: track}

	// Wait fails on cancellation and when the deadline is too close for the next token.
	if err := e.limiter.Wait(ctx); err != nil {
		match.Err = resilience.Normalize(err, resilience.KindCancelled, nil)
		return match
	}

	res := resilience.Wrap(ctx, e.guard, "transfer.search", func(ctx context.Context) (*services.Track, error) {
		found, err := e.youtube.SearchTrack(ctx, track.Title, track.Artist)
		if errors.Is(err, services.ErrNoMatch) {
			return nil, nil
		}
		return found, err
	}, e.policy)

	match.Matched, match.Err = res.Data, res.Err
	return match
}

// Diff compares two playlists and identifies differences.
//
// Tracks match on ISRC when both sides carry one, otherwise on normalized title and artist.
// Each export is attempted once; callers wanting retries pass [services.ResilientService] values.
func (e *PlaylistEngine) Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*TransferDiffResult, error) {
	if sourceSvc == nil || destSvc == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	result := &TransferDiffResult{}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceSvc.Name()))
	source := resilience.Wrap(ctx, e.guard, "diff.source", func(ctx context.Context) (*services.PlaylistExport, error) {
		return sourceSvc.ExportPlaylist(ctx, sourceID)
	}, nil)
	if !source.OK() {
		return nil, source.Err
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destSvc.Name()))
	dest := resilience.Wrap(ctx, e.guard, "diff.dest", func(ctx context.Context) (*services.PlaylistExport, error) {
		return destSvc.ExportPlaylist(ctx, destID)
	}, nil)
	if !dest.OK() {
		return nil, dest.Err
	}

	result.Comparison.SourcePlaylist = source.Data
	result.Comparison.DestPlaylist = dest.Data

	e.sendProgress(progress, buildDestMapUpdate(1, 2))
	destIndex := newTrackIndex(dest.Data.Tracks)
	sourceIndex := newTrackIndex(source.Data.Tracks)

	e.sendProgress(progress, missingTrackUpdate(2, 2))
	for _, srcTrack := range source.Data.Tracks {
		if destIndex.has(srcTrack) {
			result.Comparison.MatchedCount++
		} else {
			result.Comparison.MissingInDest = append(result.Comparison.MissingInDest, srcTrack)
		}
	}

	for _, destTrack := range dest.Data.Tracks {
		if !sourceIndex.has(destTrack) {
			result.Comparison.ExtraInDest = append(result.Comparison.ExtraInDest, destTrack)
		}
	}

	return result, nil
}

type trackIndex struct {
	keys  map[string]struct{}
	isrcs map[string]struct{}
}

func newTrackIndex(tracks []services.Track) trackIndex {
	idx := trackIndex{keys: make(map[string]struct{}), isrcs: make(map[string]struct{})}
	for _, t := range tracks {
		idx.keys[t.Key()] = struct{}{}
		if t.ISRC != "" {
			idx.isrcs[t.ISRC] = struct{}{}
		}
	}
	return idx
}

func (idx trackIndex) has(t services.Track) bool {
	if t.ISRC != "" {
		if _, ok := idx.isrcs[t.ISRC]; ok {
			return true
		}
	}
	_, ok := idx.keys[t.Key()]
	return ok
}
