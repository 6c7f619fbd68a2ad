// Package session implements the device session engine (C5, C6): the
// handshake-derived session key (Handshake), and the connect →
// authenticate → ready → reconnect state machine (Session) that owns one
// socket, one device descriptor, and the observers subscribed to its
// status updates.
//
// A Session runs a single background task, single-threaded and cooperative
// per session: user-facing methods enqueue work onto that task via a
// bounded channel rather than touching the socket directly, and observer
// callbacks are invoked from the task in strict arrival order.
package session
