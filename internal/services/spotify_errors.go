package services

import (
	"strings"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
)

// Spotify sub-codes.
const (
	SpotifyPremiumRequired   = "premium_required"
	SpotifyTokenExpired      = "token_expired"
	SpotifyUnauthorized      = "unauthorized"
	SpotifyInvalidGrant      = "invalid_grant"
	SpotifyInsufficientScope = "insufficient_client_scope"
	SpotifyRateLimited       = "rate_limited"
)

// SpotifyErrors returns the [resilience.Extension] for failures reported by the Spotify Web API.
func SpotifyErrors() *resilience.Bundle {
	return &resilience.Bundle{
		Integration:    SpotifyIntegration,
		ExtractSubCode: spotifySubCode,
		Messages: map[string]string{
			SpotifyPremiumRequired:   "This feature requires a Spotify Premium subscription.",
			SpotifyTokenExpired:      "Your Spotify session expired. Reconnect your account to continue.",
			SpotifyUnauthorized:      "Playsync isn't signed in to Spotify. Reconnect your account to continue.",
			SpotifyInvalidGrant:      "Spotify access was revoked. Reconnect your account to continue.",
			SpotifyInsufficientScope: "Playsync needs additional Spotify permissions. Please reconnect your account.",
			SpotifyRateLimited:       "Spotify is limiting requests right now. Playsync will try again shortly.",
		},
		RetryOverrides: map[string]bool{
			SpotifyPremiumRequired: false,
			SpotifyTokenExpired:    true,
			SpotifyInvalidGrant:    false,
			SpotifyRateLimited:     true,
		},
		ExtractRetryAfter: func(raw any) (time.Duration, bool) {
			u, ok := upstreamFailure(raw, SpotifyIntegration)
			if !ok {
				return 0, false
			}
			return u.retryAfter()
		},
	}
}

func spotifySubCode(raw any) (string, bool) {
	u, ok := upstreamFailure(raw, SpotifyIntegration)
	if !ok {
		return "", false
	}

	switch {
	case strings.EqualFold(u.code, SpotifyPremiumRequired):
		return SpotifyPremiumRequired, true
	case strings.EqualFold(u.code, SpotifyInsufficientScope):
		return SpotifyInsufficientScope, true
	case u.code == SpotifyInvalidGrant:
		return SpotifyInvalidGrant, true
	case u.status == 429:
		return SpotifyRateLimited, true
	case u.status == 403 && strings.Contains(u.message, "insufficient client scope"):
		return SpotifyInsufficientScope, true
	case u.status == 401 && strings.Contains(u.message, "expired"):
		return SpotifyTokenExpired, true
	case u.status == 401:
		return SpotifyUnauthorized, true
	}
	return "", false
}
