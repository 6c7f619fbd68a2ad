package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "midealan") {
		t.Errorf("GetConfigDir() = %v, should contain 'midealan'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}

	t.Logf("Config directory: %s", configDir)
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Logf("Config path: %s", configPath)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}

	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice(123456)
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := reg.EnsureDevice(123456)
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same device_id")
	}

	device3 := reg.EnsureDevice(789012)
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different device_id")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen(123456, "192.168.1.100")
	after := time.Now()

	device := reg.GetDevice(123456)
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}

	if device.LastIP != "192.168.1.100" {
		t.Errorf("LastIP = %v, want 192.168.1.100", device.LastIP)
	}

	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}
}

func TestRegistrySetDeviceNickname(t *testing.T) {
	reg := NewRegistry()

	reg.SetDeviceNickname(123456, "Living Room AC")

	device := reg.GetDevice(123456)
	if device == nil {
		t.Fatal("Device should exist after SetDeviceNickname()")
	}

	if device.Nickname != "Living Room AC" {
		t.Errorf("Nickname = %v, want 'Living Room AC'", device.Nickname)
	}
}

func TestRegistrySetDeviceCredentials(t *testing.T) {
	reg := NewRegistry()

	reg.SetDeviceCredentials(123456, 3, "aabbcc", "ddeeff")

	device := reg.GetDevice(123456)
	if device == nil {
		t.Fatal("Device should exist after SetDeviceCredentials()")
	}

	if device.ProtocolVersion != 3 {
		t.Errorf("ProtocolVersion = %v, want 3", device.ProtocolVersion)
	}
	if device.TokenHex != "aabbcc" {
		t.Errorf("TokenHex = %v, want 'aabbcc'", device.TokenHex)
	}
	if device.KeyHex != "ddeeff" {
		t.Errorf("KeyHex = %v, want 'ddeeff'", device.KeyHex)
	}
}

func TestRegistryYAMLRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "midealan-config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	testConfigPath := filepath.Join(tmpDir, "config.yaml")

	reg := NewRegistry()
	reg.SetDeviceNickname(123456, "Living Room AC")
	reg.SetDeviceCredentials(123456, 3, "aabbcc", "ddeeff")

	data, err := yaml.Marshal(reg)
	if err != nil {
		t.Fatalf("Failed to marshal registry: %v", err)
	}

	if err := os.WriteFile(testConfigPath, data, 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loadedData, err := os.ReadFile(testConfigPath)
	if err != nil {
		t.Fatalf("Failed to read test config: %v", err)
	}

	var loadedReg Registry
	if err := yaml.Unmarshal(loadedData, &loadedReg); err != nil {
		t.Fatalf("Failed to unmarshal registry: %v", err)
	}

	device := loadedReg.GetDevice(123456)
	if device == nil {
		t.Fatal("Device should exist in loaded registry")
	}

	if device.Nickname != "Living Room AC" {
		t.Errorf("Loaded nickname = %v, want 'Living Room AC'", device.Nickname)
	}
	if device.TokenHex != "aabbcc" {
		t.Errorf("Loaded token = %v, want 'aabbcc'", device.TokenHex)
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice(123456)
	}
}
