package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/logging"
)

// ReadingView is one reading as served over the API
type ReadingView struct {
	Type      string `json:"value_type"`
	Value     string `json:"value"`
	Kind      string `json:"kind"`
	Formatted string `json:"formatted,omitempty"`
}

// DeviceView is a device record as served over the API
type DeviceView struct {
	Name            string        `json:"name"`
	Status          string        `json:"status"`
	Resolving       bool          `json:"resolving"`
	Address         string        `json:"address,omitempty"`
	URL             string        `json:"url,omitempty"`
	ResolveError    string        `json:"resolve_error,omitempty"`
	FetchError      string        `json:"fetch_error,omitempty"`
	SoftwareVersion string        `json:"software_version,omitempty"`
	Age             string        `json:"age,omitempty"`
	FetchedAt       *time.Time    `json:"fetched_at,omitempty"`
	Readings        []ReadingView `json:"readings"`
	FoundAt         time.Time     `json:"found_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SnapshotView is the body of GET /api/devices and of each /ws message
type SnapshotView struct {
	Type    string       `json:"type,omitempty"`
	Seq     uint64       `json:"seq"`
	Taken   time.Time    `json:"taken"`
	Devices []DeviceView `json:"devices"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// NewDeviceView converts a record for serving
func NewDeviceView(rec coordinator.DeviceRecord) DeviceView {
	v := DeviceView{
		Name:         rec.Name,
		Status:       string(rec.Status()),
		Resolving:    rec.Resolving,
		Address:      rec.Service.HostAddress(),
		URL:          rec.URL(),
		ResolveError: rec.ResolveError,
		FetchError:   rec.FetchError,
		Readings:     []ReadingView{},
		FoundAt:      rec.FoundAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if r := rec.Readings; r != nil {
		v.SoftwareVersion = r.SoftwareVersion
		v.Age = r.Age
		if !r.FetchedAt.IsZero() {
			at := r.FetchedAt
			v.FetchedAt = &at
		}
		for _, reading := range r.Values {
			v.Readings = append(v.Readings, ReadingView{
				Type:      reading.Type,
				Value:     reading.Value,
				Kind:      reading.Kind().String(),
				Formatted: reading.Format(),
			})
		}
	}
	return v
}

// NewSnapshotView converts a snapshot for serving
func NewSnapshotView(snap *coordinator.Snapshot) SnapshotView {
	v := SnapshotView{Seq: snap.Seq, Taken: snap.Taken, Devices: []DeviceView{}}
	for _, rec := range snap.Devices() {
		v.Devices = append(v.Devices, NewDeviceView(rec))
	}
	return v
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewSnapshotView(s.devices.Snapshot()))
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rec, ok := s.devices.Snapshot().Get(name)
	if !ok {
		writeError(w, "device not found: "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NewDeviceView(rec))
}

func (s *Server) resolveDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.command(w, name, s.devices.Resolve(r.Context(), name))
}

func (s *Server) refreshDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.command(w, name, s.devices.Refresh(r.Context(), name))
}

// command replies 202 once the coordinator accepted a command
func (s *Server) command(w http.ResponseWriter, name string, err error) {
	switch {
	case err == nil:
		rec, _ := s.devices.Snapshot().Get(name)
		writeJSON(w, http.StatusAccepted, NewDeviceView(rec))
	case errors.Is(err, coordinator.ErrUnknownDevice):
		writeError(w, "device not found: "+name, http.StatusNotFound)
	case errors.Is(err, coordinator.ErrNotResolved):
		writeError(w, "device has no address yet: "+name, http.StatusConflict)
	case errors.Is(err, coordinator.ErrNotRunning):
		writeError(w, "discovery is not running", http.StatusServiceUnavailable)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("Error encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Message: message, Status: statusCode})
}
