// Package monitor is a live status fan-out for dashboard-style observers.
// It bridges session.Observer callbacks — synchronous, single-goroutine,
// per-session — to any number of browser clients connected over
// WebSocket, without pulling that concern into the session engine
// itself. A Hub owns the broadcast loop; Server wraps it with an HTTP
// listener and an optional TLS certificate, the way the connection
// tracking and graceful shutdown in this module's session transport
// layer is structured, minus anything specific to a particular embedded
// client.
package monitor
