package discovery

import (
	"fmt"
	"net"
	"strconv"
)

const (
	// ServiceType is the DNS-SD service class sensor.community nodes
	// advertise their web interface under
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultPort is the HTTP port assumed when a record carries none
	DefaultPort = 80
)

// ServiceReference is a handle to a discovered network service.
// Name is the unique key. References delivered by the browser are
// unresolved: Host is empty until a Resolver fills it in.
type ServiceReference struct {
	// Name is the DNS-SD instance name (e.g., "airRohr-1234567")
	Name string

	// Type is the service type the reference was found under
	Type string

	// Domain is the browse domain
	Domain string

	// HostName is the mDNS target host (e.g., "airRohr-1234567.local.")
	HostName string

	// Host is the resolved IP address
	Host string

	// Port is the resolved TCP port
	Port int

	// Text contains the TXT record data, "key=value" split on the first '='
	Text map[string]string
}

// Resolved reports whether the reference carries a host address
func (s ServiceReference) Resolved() bool {
	return s.Host != ""
}

// HostAddress returns the address used to reach the service over HTTP.
// The port is omitted when it is the HTTP default.
func (s ServiceReference) HostAddress() string {
	if s.Host == "" {
		return ""
	}
	if s.Port == 0 || s.Port == DefaultPort {
		if ip := net.ParseIP(s.Host); ip != nil && ip.To4() == nil {
			return "[" + s.Host + "]"
		}
		return s.Host
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the base URL of the device's web interface, or "" if unresolved
func (s ServiceReference) URL() string {
	if !s.Resolved() {
		return ""
	}
	return "http://" + s.HostAddress()
}

// Unresolved returns a copy of the reference with the address fields cleared
func (s ServiceReference) Unresolved() ServiceReference {
	s.HostName = ""
	s.Host = ""
	s.Port = 0
	return s
}

// GetText retrieves a TXT value by key, or returns empty string if not found
func (s ServiceReference) GetText(key string) string {
	if s.Text == nil {
		return ""
	}
	return s.Text[key]
}

// String returns a human-readable string representation of the reference
func (s ServiceReference) String() string {
	if !s.Resolved() {
		return fmt.Sprintf("%s (unresolved)", s.Name)
	}
	return fmt.Sprintf("%s at %s", s.Name, s.HostAddress())
}

// EventType tags a discovery event
type EventType int

const (
	EventFound EventType = iota
	EventLost
)

func (t EventType) String() string {
	switch t {
	case EventFound:
		return "found"
	case EventLost:
		return "lost"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single Found/Lost announcement, carrying the reference as it
// was at the time of the event
type Event struct {
	Type    EventType
	Service ServiceReference
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Service.Name)
}
