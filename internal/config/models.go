package config

import (
	"strconv"
	"time"
)

// Registry represents the entire user configuration file: bookkeeping
// metadata the core itself never needs, kept here as ambient sugar a
// caller may use to remember devices across discovery runs.
type Registry struct {
	Version int               `yaml:"version"`
	Devices map[string]*Device `yaml:"devices,omitempty"` // keyed by device_id, decimal
}

// Device is user-remembered metadata for one device_id: a nickname, the
// last address it was seen at, and (hex-encoded) long-lived credentials.
// Session configuration itself is a plain options struct, not tied to
// this registry.
type Device struct {
	Nickname        string    `yaml:"nickname,omitempty"`
	LastIP          string    `yaml:"last_ip,omitempty"`
	LastSeen        time.Time `yaml:"last_seen,omitempty"`
	ProtocolVersion byte      `yaml:"protocol_version,omitempty"`
	TokenHex        string    `yaml:"token_hex,omitempty"`
	KeyHex          string    `yaml:"key_hex,omitempty"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
	}
}

func deviceKey(deviceID uint64) string {
	return strconv.FormatUint(deviceID, 10)
}

// GetDevice retrieves device metadata by device_id. Returns nil if the
// device doesn't exist in the registry.
func (r *Registry) GetDevice(deviceID uint64) *Device {
	return r.Devices[deviceKey(deviceID)]
}

// EnsureDevice ensures a device entry exists in the registry, creating an
// empty one if necessary, and returns it.
func (r *Registry) EnsureDevice(deviceID uint64) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	key := deviceKey(deviceID)
	if device, ok := r.Devices[key]; ok {
		return device
	}
	device := &Device{}
	r.Devices[key] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and IP for a device.
func (r *Registry) UpdateDeviceLastSeen(deviceID uint64, ip string) {
	device := r.EnsureDevice(deviceID)
	device.LastSeen = time.Now()
	device.LastIP = ip
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(deviceID uint64, nickname string) {
	r.EnsureDevice(deviceID).Nickname = nickname
}

// SetDeviceCredentials records the negotiated protocol version and the
// hex-encoded token/key a session needs to reconnect without repeating
// whatever cloud-assisted provisioning produced them.
func (r *Registry) SetDeviceCredentials(deviceID uint64, protocolVersion byte, tokenHex, keyHex string) {
	device := r.EnsureDevice(deviceID)
	device.ProtocolVersion = protocolVersion
	device.TokenHex = tokenHex
	device.KeyHex = keyHex
}
