// Package protocol implements the wire-level codecs for the local-area
// appliance control protocol: AES/MD5 crypto primitives (C1), the inner
// application packet envelope (C2), the appliance message format (C3),
// and the signed, optionally-encrypted outer "v3" transport framing
// (C4).
//
// # Layering
//
// Outbound, a caller builds an ApplianceMessage (C3), wraps it in an
// inner packet with BuildInnerPacket (C2), and frames it with
// EncodeFrame (C4) before writing it to the TCP socket. Inbound bytes
// are fed to DecodeFrames, then ParseInnerPacket, then
// ParseApplianceMessage — the exact reverse.
//
// Protocol version 2 devices skip C4 entirely: inner packets are
// written to the socket directly with no outer frame, signature, or
// session key.
//
// # Constants
//
// The AES-ECB key and MD5 salt are fixed, protocol-wide constants (not
// per-device secrets) and are not configurable.
package protocol
