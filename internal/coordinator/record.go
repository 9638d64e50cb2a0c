package coordinator

import (
	"sort"
	"time"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
)

// Status summarizes where a device is in the discover, resolve, fetch
// pipeline
type Status string

const (
	StatusResolving  Status = "resolving"
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusReady      Status = "ready"
)

// DeviceRecord is the coordinator's view of one discovered node. Records
// handed out in snapshots are copies; Readings and Service.Text are shared
// and must be treated as read-only.
type DeviceRecord struct {
	Name         string                     `json:"name"`
	Service      discovery.ServiceReference `json:"service"`
	Resolving    bool                       `json:"resolving"`
	Readings     *airrohr.Readings          `json:"readings,omitempty"`
	ResolveError string                     `json:"resolve_error,omitempty"`
	FetchError   string                     `json:"fetch_error,omitempty"`
	FoundAt      time.Time                  `json:"found_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Status reports the record's pipeline state
func (r DeviceRecord) Status() Status {
	switch {
	case r.Resolving:
		return StatusResolving
	case !r.Service.Resolved():
		return StatusUnresolved
	case r.Readings == nil:
		return StatusResolved
	default:
		return StatusReady
	}
}

// URL returns the node's web interface, or "" while unresolved
func (r DeviceRecord) URL() string {
	return r.Service.URL()
}

// Snapshot is an immutable view of every currently known device
type Snapshot struct {
	// Seq increases with every published transition
	Seq uint64

	// Taken is when the snapshot was published
	Taken time.Time

	devices map[string]DeviceRecord
}

// NewSnapshot builds a snapshot from records. The map is copied.
func NewSnapshot(seq uint64, taken time.Time, records map[string]DeviceRecord) *Snapshot {
	devices := make(map[string]DeviceRecord, len(records))
	for name, r := range records {
		devices[name] = r
	}
	return &Snapshot{Seq: seq, Taken: taken, devices: devices}
}

// Len returns the number of devices
func (s *Snapshot) Len() int {
	return len(s.devices)
}

// Get returns the record for name
func (s *Snapshot) Get(name string) (DeviceRecord, bool) {
	r, ok := s.devices[name]
	return r, ok
}

// Names returns the device names in sorted order
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Devices returns the records sorted by name
func (s *Snapshot) Devices() []DeviceRecord {
	out := make([]DeviceRecord, 0, len(s.devices))
	for _, name := range s.Names() {
		out = append(out, s.devices[name])
	}
	return out
}

// Map returns a copy of the name to record mapping
func (s *Snapshot) Map() map[string]DeviceRecord {
	out := make(map[string]DeviceRecord, len(s.devices))
	for name, r := range s.devices {
		out[name] = r
	}
	return out
}
