// Package config provides user configuration management for airscout.
//
// This package manages a YAML-based configuration file that remembers
// sensor nodes between runs (nickname, last address, last readings) and
// holds discovery, server and publishing preferences. The configuration
// follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/airscout/config.yaml or $HOME/.config/airscout/config.yaml
//   - macOS: $HOME/.config/airscout/config.yaml
//   - Windows: %LOCALAPPDATA%\airscout\config.yaml
//
// # Security
//
// MQTT passwords and InfluxDB tokens are never written to the file. They
// are read from AIRSCOUT_MQTT_PASSWORD and AIRSCOUT_INFLUX_TOKEN.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDeviceNickname("airRohr-1234567", "Balcony")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes. The
// Registry itself is not safe for concurrent mutation.
package config
