// Package logging provides structured logging for the session engine and
// supporting tools.
//
// This package wraps the zap logger with convenience functions for common
// logging patterns used throughout the module. It provides both general
// logging functions and specialized functions for protocol-level and
// dashboard logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, frame parsing, heartbeats)
//   - Info: Normal operations (connections, messages, state changes)
//   - Warn: Non-fatal issues (connection drops, retries)
//   - Error: Fatal issues (startup failures, critical errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("device connected",
//	    zap.String("remote_addr", "192.168.1.100"),
//	    zap.Uint64("device_id", 123456789),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions, used by
// session's connection lifecycle and internal/monitor's dashboard
// WebSocket pumps:
//
// Connection Logging (session.Session's dial/ready/drop transitions):
//
//	logging.LogConnection(remoteAddr, "dialed")
//	logging.LogConnection(remoteAddr, "ready")
//	logging.LogConnection(remoteAddr, "dropped")
//
// Dashboard WebSocket Message Logging (internal/monitor.Hub's read/write pumps):
//
//	logging.LogWebSocketMessage(remoteAddr, "outbound", msgType, payload)
//
// Raw Protocol Byte Logging (session.Session's socket read/write path):
//
//	logging.LogRawBytes("session: raw socket read", data)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
