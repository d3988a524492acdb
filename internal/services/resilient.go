package services

import (
	"context"

	"github.com/desertthunder/playsync/internal/resilience"
)

// ResilientService decorates a [Service] so every remote call runs under a retry [resilience.Policy].
//
// Failures come back as [*resilience.Record] values. Authenticate and Name pass through untouched.
type ResilientService struct {
	Service
	engine *resilience.Engine
	policy resilience.Policy
}

var _ Service = (*ResilientService)(nil)

// NewResilientService wraps svc. A nil engine uses [resilience.DefaultEngine].
func NewResilientService(svc Service, engine *resilience.Engine, policy resilience.Policy) *ResilientService {
	if engine == nil {
		engine = resilience.DefaultEngine()
	}
	return &ResilientService{Service: svc, engine: engine, policy: policy}
}

// Unwrap returns the decorated service.
func (r *ResilientService) Unwrap() Service { return r.Service }

func (r *ResilientService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	return resilience.Retry(ctx, r.engine, r.policy, r.Service.GetPlaylists)
}

func (r *ResilientService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	return resilience.Retry(ctx, r.engine, r.policy, func(ctx context.Context) (*Playlist, error) {
		return r.Service.GetPlaylist(ctx, playlistID)
	})
}

func (r *ResilientService) ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error) {
	return resilience.Retry(ctx, r.engine, r.policy, func(ctx context.Context) (*PlaylistExport, error) {
		return r.Service.ExportPlaylist(ctx, playlistID)
	})
}

// ImportPlaylist is not idempotent, so it runs once regardless of the policy.
func (r *ResilientService) ImportPlaylist(ctx context.Context, playlist *PlaylistExport) (*Playlist, error) {
	return resilience.Retry(ctx, r.engine, resilience.SingleAttempt(), func(ctx context.Context) (*Playlist, error) {
		return r.Service.ImportPlaylist(ctx, playlist)
	})
}

func (r *ResilientService) SearchTrack(ctx context.Context, title, artist string) (*Track, error) {
	return resilience.Retry(ctx, r.engine, r.policy, func(ctx context.Context) (*Track, error) {
		return r.Service.SearchTrack(ctx, title, artist)
	})
}
