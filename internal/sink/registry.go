package sink

import (
	"context"
	"sync"

	"github.com/muurk/airscout/internal/config"
)

// Registry remembers every sample's address and readings in the user's
// configuration file
type Registry struct {
	mu   sync.Mutex
	reg  *config.Registry
	save func(*config.Registry) error
}

// NewRegistry records sightings into reg and persists them with save
func NewRegistry(reg *config.Registry, save func(*config.Registry) error) *Registry {
	return &Registry{reg: reg, save: save}
}

// Name implements Sink
func (r *Registry) Name() string { return "registry" }

// Publish implements Sink
func (r *Registry) Publish(ctx context.Context, s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reg.RecordSighting(s.Device, s.Address, s.Readings, s.Time())
	if r.save == nil {
		return nil
	}
	return r.save(r.reg)
}

// Close implements Sink
func (r *Registry) Close() error { return nil }
