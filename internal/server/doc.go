// Package server provides HTTP routing, middleware, and OAuth handling for the CLI's local auth server.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] implements it on top of
// [http.ServeMux] method patterns. [Middleware] is applied first-added outermost; [RequestLogger] and
// [Recoverer] are the stock ones.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the redirect leg of the authorization code flow. It checks the state parameter,
// exchanges the code through an [Exchanger] and delivers one [OAuthResult]. A failed callback is normalized into
// a [resilience.Record], and the browser page shows only the record's user message.
//
// # Usage
//
// `spotify auth` starts a temporary server with [Start] on the configured host and port, opens the browser,
// waits for the callback and shuts the server down.
package server
