package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

func TestExtensions(t *testing.T) {
	registry := resilience.NewRegistry(Extensions()...)

	tt := []struct {
		name      string
		raw       any
		kind      resilience.Kind
		extension string
		subCode   string
		retryable bool
	}{
		{
			name:      "spotify premium required",
			raw:       &resilience.HTTPError{Service: SpotifyIntegration, Status: 403, Code: "PREMIUM_REQUIRED"},
			kind:      resilience.KindAuthorization,
			extension: SpotifyIntegration,
			subCode:   SpotifyPremiumRequired,
		},
		{
			name:      "spotify insufficient scope",
			raw:       &resilience.HTTPError{Service: SpotifyIntegration, Status: 403, Message: "Insufficient client scope"},
			kind:      resilience.KindAuthorization,
			extension: SpotifyIntegration,
			subCode:   SpotifyInsufficientScope,
		},
		{
			name:      "spotify expired token",
			raw:       fmt.Errorf("wrapped: %w", &resilience.HTTPError{Service: SpotifyIntegration, Status: 401, Message: "The access token expired"}),
			kind:      resilience.KindAuthentication,
			extension: SpotifyIntegration,
			subCode:   SpotifyTokenExpired,
			retryable: true,
		},
		{
			name:      "spotify revoked refresh token",
			raw:       spotifyTransportError(&oauth2.RetrieveError{ErrorCode: "invalid_grant"}),
			kind:      resilience.KindAuthentication,
			extension: SpotifyIntegration,
			subCode:   SpotifyInvalidGrant,
		},
		{
			name:      "spotify rate limit",
			raw:       &resilience.HTTPError{Service: SpotifyIntegration, Status: 429, Fields: map[string]string{"retry-after": "3"}},
			kind:      resilience.KindClient,
			extension: SpotifyIntegration,
			subCode:   SpotifyRateLimited,
			retryable: true,
		},
		{
			name:      "spotify decoded json object",
			raw:       map[string]any{"service": "spotify", "status": float64(403), "code": "premium_required"},
			kind:      resilience.KindAuthorization,
			extension: SpotifyIntegration,
			subCode:   SpotifyPremiumRequired,
		},
		{
			name:      "youtube quota",
			raw:       &resilience.HTTPError{Service: YouTubeIntegration, Status: 403, Message: "Quota exceeded for quota metric"},
			kind:      resilience.KindAuthorization,
			extension: YouTubeIntegration,
			subCode:   YouTubeQuotaExceeded,
		},
		{
			name:      "youtube missing auth file",
			raw:       fmt.Errorf("%w: ./headers_auth.json", ErrAuthFileMissing),
			kind:      resilience.KindAuthentication,
			extension: YouTubeIntegration,
			subCode:   YouTubeAuthFileMissing,
		},
		{
			name:      "youtube proxy down",
			raw:       fmt.Errorf("%w: dial tcp 127.0.0.1:8080: connect: connection refused", ErrProxyUnreachable),
			kind:      resilience.KindNetwork,
			extension: YouTubeIntegration,
			subCode:   YouTubeProxyUnavailable,
			retryable: true,
		},
		{
			name:      "other service is ignored",
			raw:       &resilience.HTTPError{Service: "lastfm", Status: 401},
			kind:      resilience.KindAuthentication,
			extension: "",
			subCode:   "",
		},
		{
			name:      "unrelated spotify status",
			raw:       &resilience.HTTPError{Service: SpotifyIntegration, Status: 502},
			kind:      resilience.KindServer,
			retryable: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rec := registry.Normalize(tc.raw)

			if rec.Kind() != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, rec.Kind())
			}
			if rec.Extension() != tc.extension {
				t.Errorf("expected extension %q, got %q", tc.extension, rec.Extension())
			}
			if rec.SubCode() != tc.subCode {
				t.Errorf("expected sub-code %q, got %q", tc.subCode, rec.SubCode())
			}
			if rec.Retryable() != tc.retryable {
				t.Errorf("expected retryable %v, got %v", tc.retryable, rec.Retryable())
			}
			if tc.subCode != "" && rec.UserMessage() == resilience.DefaultUserMessage(tc.kind) {
				t.Errorf("expected an integration message for %s", tc.subCode)
			}
		})
	}

	t.Run("retry after hint", func(t *testing.T) {
		rec := registry.Normalize(&resilience.HTTPError{
			Service: YouTubeIntegration,
			Status:  429,
			Message: "Too many requests, retry after 2 seconds",
		})

		d, ok := rec.RetryAfter()
		if !ok || d != 2*time.Second {
			t.Errorf("expected 2s hint, got %v (%v)", d, ok)
		}
	})
}

func TestInsufficientScopeReconnects(t *testing.T) {
	registry := resilience.NewRegistry(Extensions()...)
	cfg := resilience.DefaultResolverConfig()
	cfg.ReconnectPaths = map[string]string{SpotifyIntegration: "playsync spotify auth"}
	resolver := resilience.NewResolver(cfg)

	tt := []struct {
		name string
		raw  any
	}{
		{
			name: "http error code",
			raw:  &resilience.HTTPError{Service: SpotifyIntegration, Status: 403, Code: SpotifyInsufficientScope},
		},
		{
			name: "decoded object",
			raw:  map[string]any{"service": SpotifyIntegration, "status": 403, "code": SpotifyInsufficientScope},
		},
		{
			name: "message text",
			raw:  &resilience.HTTPError{Service: SpotifyIntegration, Status: 403, Message: "Insufficient client scope"},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rec := registry.Normalize(tc.raw)

			if rec.Kind() != resilience.KindAuthorization {
				t.Errorf("expected AUTHORIZATION, got %s", rec.Kind())
			}
			if rec.SubCode() != SpotifyInsufficientScope {
				t.Errorf("expected sub-code %q, got %q", SpotifyInsufficientScope, rec.SubCode())
			}
			if rec.Retryable() {
				t.Error("expected insufficient scope to be non-retryable")
			}

			rcm := resolver.Resolve(rec)
			if rcm.Primary.Effect != resilience.Navigate("playsync spotify auth") {
				t.Errorf("expected reconnect, got %s", rcm.Primary.Effect)
			}
			if rcm.Secondary == nil || rcm.Secondary.Effect != resilience.Reload() {
				t.Errorf("expected reload as secondary, got %+v", rcm.Secondary)
			}
		})
	}
}

type flakyService struct {
	Service
	failures int
	calls    int
	err      error
}

func (f *flakyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []Playlist{{ID: "p1"}}, nil
}

func (f *flakyService) ImportPlaylist(ctx context.Context, playlist *PlaylistExport) (*Playlist, error) {
	f.calls++
	return nil, f.err
}

func TestResilientService(t *testing.T) {
	engine := resilience.NewEngine(
		resilience.NewRegistry(Extensions()...),
		resilience.WithWaiter(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	policy := resilience.DefaultPolicy()

	t.Run("retries transient failures", func(t *testing.T) {
		svc := &flakyService{failures: 2, err: &resilience.HTTPError{Service: SpotifyIntegration, Status: http.StatusBadGateway}}

		playlists, err := NewResilientService(svc, engine, policy).GetPlaylists(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 1 || svc.calls != 3 {
			t.Errorf("expected success on the third call, got %d calls", svc.calls)
		}
	})

	t.Run("stops on permanent failures", func(t *testing.T) {
		svc := &flakyService{failures: 5, err: &resilience.HTTPError{Service: SpotifyIntegration, Status: 403, Code: "PREMIUM_REQUIRED"}}

		_, err := NewResilientService(svc, engine, policy).GetPlaylists(context.Background())

		var rec *resilience.Record
		if !errors.As(err, &rec) {
			t.Fatalf("expected Record, got %T", err)
		}
		if rec.SubCode() != SpotifyPremiumRequired || svc.calls != 1 {
			t.Errorf("expected one call ending in premium_required, got %d calls and %q", svc.calls, rec.SubCode())
		}
	})

	t.Run("imports run once", func(t *testing.T) {
		svc := &flakyService{err: &resilience.HTTPError{Service: YouTubeIntegration, Status: 503}}

		_, err := NewResilientService(svc, engine, policy).ImportPlaylist(context.Background(), &PlaylistExport{})
		if err == nil || svc.calls != 1 {
			t.Errorf("expected a single failed attempt, got %d calls", svc.calls)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		svc := &flakyService{}
		if NewResilientService(svc, nil, policy).Unwrap() != svc {
			t.Error("expected the decorated service")
		}
	})
}

func TestSharedSentinelsClassify(t *testing.T) {
	tt := []struct {
		err  error
		kind resilience.Kind
	}{
		{err: fmt.Errorf("%w: spotify", shared.ErrNotAuthenticated), kind: resilience.KindAuthentication},
		{err: fmt.Errorf("%w: bad id", shared.ErrInvalidInput), kind: resilience.KindValidation},
		{err: fmt.Errorf("%w: dial tcp", ErrProxyUnreachable), kind: resilience.KindNetwork},
		{err: fmt.Errorf("%w: Mix", shared.ErrPlaylistNotFound), kind: resilience.KindNotFound},
	}

	for _, tc := range tt {
		t.Run(tc.err.Error(), func(t *testing.T) {
			if got := resilience.Classify(tc.err); got != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, got)
			}
		})
	}
}
