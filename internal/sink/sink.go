package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/logging"
)

// Sample is one set of readings fetched from one node
type Sample struct {
	Device   string
	Address  string
	Readings *airrohr.Readings
}

// Time returns when the readings were fetched, or now if unknown
func (s Sample) Time() time.Time {
	if s.Readings != nil && !s.Readings.FetchedAt.IsZero() {
		return s.Readings.FetchedAt
	}
	return time.Now()
}

// Sink receives every new sample
type Sink interface {
	Name() string
	Publish(ctx context.Context, s Sample) error
	Close() error
}

// Forwarder watches coordinator snapshots and hands each newly fetched set
// of readings to every sink exactly once
type Forwarder struct {
	sinks []Sink
	last  map[string]*airrohr.Readings
}

// NewForwarder creates a forwarder for sinks
func NewForwarder(sinks ...Sink) *Forwarder {
	return &Forwarder{
		sinks: sinks,
		last:  make(map[string]*airrohr.Readings),
	}
}

// Run forwards samples until updates is closed or ctx is done. Sink
// failures are logged and do not stop forwarding.
func (f *Forwarder) Run(ctx context.Context, updates <-chan *coordinator.Snapshot) {
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			for _, s := range f.samples(snap) {
				f.publish(ctx, s)
			}
		case <-ctx.Done():
			return
		}
	}
}

// samples returns the readings that changed since the previous snapshot,
// sorted by device
func (f *Forwarder) samples(snap *coordinator.Snapshot) []Sample {
	var out []Sample
	seen := make(map[string]bool, snap.Len())

	for _, rec := range snap.Devices() {
		seen[rec.Name] = true
		if rec.Readings == nil || f.last[rec.Name] == rec.Readings {
			continue
		}
		f.last[rec.Name] = rec.Readings
		out = append(out, Sample{
			Device:   rec.Name,
			Address:  rec.Service.HostAddress(),
			Readings: rec.Readings,
		})
	}

	for name := range f.last {
		if !seen[name] {
			delete(f.last, name)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

func (f *Forwarder) publish(ctx context.Context, s Sample) {
	for _, sk := range f.sinks {
		if err := sk.Publish(ctx, s); err != nil {
			logging.Error("Failed to publish readings",
				zap.String("sink", sk.Name()),
				zap.String("service", s.Device),
				zap.Error(err),
			)
		}
	}
}

// Close closes every sink
func (f *Forwarder) Close() error {
	var errs []error
	for _, sk := range f.sinks {
		if err := sk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
		}
	}
	return errors.Join(errs...)
}
