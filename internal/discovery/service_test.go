package discovery

import "testing"

func TestServiceReference_HostAddress(t *testing.T) {
	tests := []struct {
		name     string
		ref      ServiceReference
		expected string
	}{
		{
			name:     "unresolved",
			ref:      ServiceReference{Name: "airRohr-1"},
			expected: "",
		},
		{
			name:     "default HTTP port",
			ref:      ServiceReference{Host: "192.168.4.16", Port: 80},
			expected: "192.168.4.16",
		},
		{
			name:     "no port",
			ref:      ServiceReference{Host: "10.0.0.5"},
			expected: "10.0.0.5",
		},
		{
			name:     "custom port",
			ref:      ServiceReference{Host: "10.0.0.5", Port: 8080},
			expected: "10.0.0.5:8080",
		},
		{
			name:     "IPv6 default port",
			ref:      ServiceReference{Host: "fe80::1", Port: 80},
			expected: "[fe80::1]",
		},
		{
			name:     "IPv6 custom port",
			ref:      ServiceReference{Host: "fe80::1", Port: 8080},
			expected: "[fe80::1]:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.HostAddress(); got != tt.expected {
				t.Errorf("HostAddress() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestServiceReference_URL(t *testing.T) {
	ref := ServiceReference{Name: "airRohr-1", Host: "192.168.4.16", Port: 80}
	if got := ref.URL(); got != "http://192.168.4.16" {
		t.Errorf("URL() = %v, want http://192.168.4.16", got)
	}

	if got := ref.Unresolved().URL(); got != "" {
		t.Errorf("Unresolved().URL() = %v, want empty", got)
	}
}

func TestServiceReference_Unresolved(t *testing.T) {
	ref := ServiceReference{
		Name:     "airRohr-1",
		Type:     ServiceType,
		HostName: "airRohr-1.local.",
		Host:     "192.168.4.16",
		Port:     80,
	}

	u := ref.Unresolved()
	if u.Resolved() {
		t.Error("Unresolved() should clear the host")
	}
	if u.Name != ref.Name || u.Type != ref.Type {
		t.Errorf("Unresolved() changed identity: %+v", u)
	}
	if !ref.Resolved() {
		t.Error("Unresolved() must not modify the receiver")
	}
}

func TestServiceReference_GetText_NilMap(t *testing.T) {
	ref := ServiceReference{}
	if got := ref.GetText("anything"); got != "" {
		t.Errorf("GetText() with nil map = %v, want empty string", got)
	}
}

func TestEventType_String(t *testing.T) {
	if EventFound.String() != "found" {
		t.Errorf("EventFound.String() = %v", EventFound.String())
	}
	if EventLost.String() != "lost" {
		t.Errorf("EventLost.String() = %v", EventLost.String())
	}
	if EventType(9).String() != "EventType(9)" {
		t.Errorf("EventType(9).String() = %v", EventType(9).String())
	}
}
