// Package services defines the [Service] interface for music streaming providers and implements it for Spotify and YouTube Music.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication. The [oauth2.Client] refreshes expired tokens using the refresh token.
//
// # YouTube Music Implementation
//
// [YouTubeService] talks to the ytmusicapi proxy. The auth file path is sent via the X-Auth-File header on each request.
//
// # Error Handling
//
// Non-2xx responses become [*resilience.HTTPError] values carrying the status, the upstream message and reason,
// and the Retry-After header. [SpotifyErrors] and [YouTubeErrors] are the [resilience.Extension] bundles that
// refine those failures into provider sub-codes (premium_required, quota_exceeded, ...).
//
// [ResilientService] decorates any [Service] so every call is retried under a [resilience.Policy].
package services
