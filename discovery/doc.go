// Package discovery implements the UDP broadcast probe/response protocol
// (C7) that locates devices on the local network and the three identity
// derivation variants used for cloud-assisted lookup.
//
// Discover sends a fixed 64-byte probe to the LAN broadcast address on
// UDP port 6445 and collects replies until the deadline. It owns its UDP
// socket only for the duration of one call.
package discovery
