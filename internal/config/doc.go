// Package config provides user configuration management for applications
// built on this module.
//
// This package manages a YAML-based configuration file that stores
// user-remembered metadata about devices previously seen on the network:
// nicknames, last known addresses, and the long-lived per-device token/key
// pair a caller can reuse to reconnect without repeating whatever
// out-of-band provisioning produced them. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/midealan/config.yaml or $HOME/.config/midealan/config.yaml
//   - macOS: $HOME/.config/midealan/config.yaml
//   - Windows: %LOCALAPPDATA%\midealan\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDeviceNickname(123456789, "Living Room AC")
//	registry.UpdateDeviceLastSeen(123456789, "192.168.1.100")
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across
// goroutines. File operations are protected by a mutex to ensure atomic
// writes.
package config
