package config

import (
	"fmt"
	"time"

	"github.com/muurk/airscout/internal/airrohr"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Secrets are never written to the config file
const (
	MQTTPasswordEnvVar = "AIRSCOUT_MQTT_PASSWORD"
	InfluxTokenEnvVar  = "AIRSCOUT_INFLUX_TOKEN"
)

// Registry represents the entire user configuration file.
// This stores remembered sensor nodes and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by DNS-SD instance name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents what is remembered about one sensor node between runs.
type Device struct {
	Nickname     string            `yaml:"nickname,omitempty"`      // User-friendly name
	LastAddress  string            `yaml:"last_address,omitempty"`  // Last resolved host[:port]
	LastSeen     time.Time         `yaml:"last_seen,omitempty"`     // Last successful fetch
	LastReadings map[string]string `yaml:"last_readings,omitempty"` // value_type -> value
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ServiceType     string        `yaml:"service_type"`     // DNS-SD service type to browse
	Domain          string        `yaml:"domain"`           // mDNS domain
	BrowseInterval  time.Duration `yaml:"browse_interval"`  // Length of one browse round
	LostAfter       int           `yaml:"lost_after"`       // Silent rounds before a node is lost
	ResolveTimeout  time.Duration `yaml:"resolve_timeout"`  // Per-resolve timeout
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`    // Per-fetch timeout
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 disables periodic refresh

	Server *ServerPrefs `yaml:"server,omitempty"`
	MQTT   *MQTTPrefs   `yaml:"mqtt,omitempty"`
	Influx *InfluxPrefs `yaml:"influx,omitempty"`
}

// ServerPrefs configures the HTTP API started by "serve".
type ServerPrefs struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTPrefs configures publishing of readings to an MQTT broker.
// Note: the password is read from AIRSCOUT_MQTT_PASSWORD and never stored.
type MQTTPrefs struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. "tcp://localhost:1883"
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retained    bool   `yaml:"retained"`
}

// InfluxPrefs configures writing of readings to InfluxDB 2.x.
// Note: the token is read from AIRSCOUT_INFLUX_TOKEN and never stored.
type InfluxPrefs struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// DefaultPreferences returns the preferences used when none are configured.
func DefaultPreferences() *Preferences {
	return &Preferences{
		ServiceType:     "_http._tcp",
		Domain:          "local.",
		BrowseInterval:  15 * time.Second,
		LostAfter:       2,
		ResolveTimeout:  10 * time.Second,
		FetchTimeout:    10 * time.Second,
		RefreshInterval: 0,
		Server: &ServerPrefs{
			Host: "127.0.0.1",
			Port: 8080,
		},
		MQTT: &MQTTPrefs{
			Broker:      "tcp://localhost:1883",
			ClientID:    "airscout",
			TopicPrefix: "airscout",
		},
		Influx: &InfluxPrefs{
			URL:         "http://localhost:8086",
			Bucket:      "airscout",
			Measurement: "airrohr",
		},
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// fillDefaults replaces missing sections and zero values with defaults
func (r *Registry) fillDefaults() {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	def := DefaultPreferences()
	if r.Preferences == nil {
		r.Preferences = def
		return
	}

	p := r.Preferences
	if p.ServiceType == "" {
		p.ServiceType = def.ServiceType
	}
	if p.Domain == "" {
		p.Domain = def.Domain
	}
	if p.BrowseInterval == 0 {
		p.BrowseInterval = def.BrowseInterval
	}
	if p.LostAfter == 0 {
		p.LostAfter = def.LostAfter
	}
	if p.ResolveTimeout == 0 {
		p.ResolveTimeout = def.ResolveTimeout
	}
	if p.FetchTimeout == 0 {
		p.FetchTimeout = def.FetchTimeout
	}
	if p.Server == nil {
		p.Server = def.Server
	}
	if p.MQTT == nil {
		p.MQTT = def.MQTT
	}
	if p.Influx == nil {
		p.Influx = def.Influx
	}
}

// Validate checks the preferences for values the program cannot run with.
func (p *Preferences) Validate() error {
	if p.BrowseInterval < time.Second {
		return fmt.Errorf("browse_interval must be at least 1s, got %s", p.BrowseInterval)
	}
	if p.LostAfter < 1 {
		return fmt.Errorf("lost_after must be at least 1, got %d", p.LostAfter)
	}
	if p.ResolveTimeout <= 0 || p.FetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if p.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative")
	}
	if p.Server != nil && (p.Server.Port < 0 || p.Server.Port > 65535) {
		return fmt.Errorf("server port out of range: %d", p.Server.Port)
	}
	if p.MQTT != nil && p.MQTT.Enabled {
		if p.MQTT.Broker == "" {
			return fmt.Errorf("mqtt is enabled but no broker is set")
		}
		if p.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", p.MQTT.QoS)
		}
	}
	if p.Influx != nil && p.Influx.Enabled && (p.Influx.URL == "" || p.Influx.Bucket == "") {
		return fmt.Errorf("influx is enabled but url or bucket is missing")
	}
	return nil
}

// GetDevice retrieves device metadata by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{}
	r.Devices[name] = device
	return device
}

// RecordSighting remembers a node's address and latest readings.
func (r *Registry) RecordSighting(name, address string, readings *airrohr.Readings, seen time.Time) {
	device := r.EnsureDevice(name)
	device.LastAddress = address
	device.LastSeen = seen

	if readings == nil {
		return
	}
	device.LastReadings = make(map[string]string, len(readings.Values))
	for _, v := range readings.Values {
		device.LastReadings[v.Type] = v.Value
	}
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) {
	device := r.EnsureDevice(name)
	device.Nickname = nickname
}

// DisplayName returns the nickname for name, or name itself
func (r *Registry) DisplayName(name string) string {
	if d := r.Devices[name]; d != nil && d.Nickname != "" {
		return d.Nickname
	}
	return name
}
