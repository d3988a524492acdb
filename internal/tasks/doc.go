// Package tasks orchestrates playlist operations between music services with real-time progress reporting.
//
// # Core Operations
//
// The [SyncEngine] interface defines two operations:
//
//  1. [SyncEngine.Run] : Full Spotify → YouTube Music transfer
//     - Fetches source playlist from Spotify, by ID or by name
//     - Searches each track on YouTube Music, throttled by a [rate.Limiter]
//     - Creates destination playlist with matched tracks
//     - Returns detailed results including failed matches
//
//  2. [SyncEngine.Diff] : Compare playlists across services
//     - Exports both source and destination playlists
//     - Matches tracks via ISRC (preferred) or normalized title/artist
//     - Reports matched count, missing tracks, and extra tracks
//
// # Failures
//
// Remote calls run through a [resilience.Guard]. A failed track search is recorded on its [TrackMatchResult]
// as a [*resilience.Record] and the transfer moves on, unless the failure means every later search would
// fail too (cancellation, lost authentication, exhausted quota).
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
