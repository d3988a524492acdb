package services

import (
	"errors"
	"strings"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
)

// YouTube Music sub-codes.
const (
	YouTubeQuotaExceeded    = "quota_exceeded"
	YouTubeRateLimited      = "rate_limited"
	YouTubeAuthExpired      = "auth_expired"
	YouTubeAuthFileMissing  = "auth_file_missing"
	YouTubeProxyUnavailable = "proxy_unavailable"
)

// YouTubeErrors returns the [resilience.Extension] for failures reported by the YouTube Music proxy.
func YouTubeErrors() *resilience.Bundle {
	return &resilience.Bundle{
		Integration:    YouTubeIntegration,
		ExtractSubCode: youtubeSubCode,
		Messages: map[string]string{
			YouTubeQuotaExceeded:    "YouTube Music's request quota is used up for today. Please try again tomorrow.",
			YouTubeRateLimited:      "YouTube Music is limiting requests right now. Playsync will try again shortly.",
			YouTubeAuthExpired:      "Your YouTube Music sign-in expired. Reconnect your account to continue.",
			YouTubeAuthFileMissing:  "Playsync isn't connected to YouTube Music yet. Connect your account to continue.",
			YouTubeProxyUnavailable: "The YouTube Music proxy isn't responding. Make sure it is running and try again.",
		},
		RetryOverrides: map[string]bool{
			YouTubeQuotaExceeded:    false,
			YouTubeRateLimited:      true,
			YouTubeAuthFileMissing:  false,
			YouTubeProxyUnavailable: true,
		},
		ExtractRetryAfter: func(raw any) (time.Duration, bool) {
			u, ok := upstreamFailure(raw, YouTubeIntegration)
			if !ok {
				return 0, false
			}
			return u.retryAfter()
		},
	}
}

func youtubeSubCode(raw any) (string, bool) {
	if err, ok := raw.(error); ok {
		switch {
		case errors.Is(err, ErrAuthFileMissing):
			return YouTubeAuthFileMissing, true
		case errors.Is(err, ErrProxyUnreachable):
			return YouTubeProxyUnavailable, true
		}
	}

	u, ok := upstreamFailure(raw, YouTubeIntegration)
	if !ok {
		return "", false
	}

	switch {
	case strings.Contains(u.message, "quota"):
		return YouTubeQuotaExceeded, true
	case u.status == 429:
		return YouTubeRateLimited, true
	case u.status == 401:
		return YouTubeAuthExpired, true
	}
	return "", false
}
