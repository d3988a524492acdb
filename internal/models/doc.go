// Package models defines persistent entities and the repository contract for playsync.
//
// Persistent entities implement the [Model] interface providing ID, timestamps and validation.
//   - [ErrorEvent] : A failure surfaced by a guarded call to Spotify or YouTube Music, kept so it can be listed and replayed
//
// The [Repository] interface defines standard CRUD operations for database access.
package models
