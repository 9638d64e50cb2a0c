package coordinator

import (
	"reflect"
	"testing"
	"time"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
)

func TestDeviceRecordStatus(t *testing.T) {
	resolved := discovery.ServiceReference{Name: "a", Host: "10.0.0.2", Port: 80}

	tests := []struct {
		name string
		rec  DeviceRecord
		want Status
	}{
		{"resolving", DeviceRecord{Resolving: true}, StatusResolving},
		{"resolving keeps priority over readings", DeviceRecord{Resolving: true, Service: resolved, Readings: &airrohr.Readings{}}, StatusResolving},
		{"unresolved", DeviceRecord{}, StatusUnresolved},
		{"resolved without data", DeviceRecord{Service: resolved}, StatusResolved},
		{"ready", DeviceRecord{Service: resolved, Readings: &airrohr.Readings{}}, StatusReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceRecordURL(t *testing.T) {
	rec := DeviceRecord{Service: discovery.ServiceReference{Host: "10.0.0.2", Port: 8080}}
	if got := rec.URL(); got != "http://10.0.0.2:8080" {
		t.Errorf("URL() = %q", got)
	}
}

func TestNewSnapshotCopiesInput(t *testing.T) {
	in := map[string]DeviceRecord{"b": {Name: "b"}, "a": {Name: "a"}}
	snap := NewSnapshot(3, time.Unix(0, 0), in)
	delete(in, "a")

	if snap.Len() != 2 {
		t.Errorf("Len() = %d, want 2", snap.Len())
	}
	if got := snap.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
	if _, ok := snap.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
	if NewSnapshot(0, time.Time{}, nil).Len() != 0 {
		t.Error("nil records should give an empty snapshot")
	}
}
