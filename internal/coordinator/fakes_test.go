package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
)

// fakeSource is a Source driven directly by the test
type fakeSource struct {
	events   chan discovery.Event
	startErr error

	mu      sync.Mutex
	err     error
	stopped bool
	stops   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan discovery.Event, 16)}
}

func (s *fakeSource) Start() error                   { return s.startErr }
func (s *fakeSource) Events() <-chan discovery.Event { return s.events }

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

func (s *fakeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail terminates the stream the way a failing browser does
func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.stopped = true
	close(s.events)
}

func (s *fakeSource) found(name string) {
	s.events <- discovery.Event{Type: discovery.EventFound, Service: discovery.ServiceReference{
		Name: name, Type: discovery.ServiceType, Domain: discovery.ServiceDomain,
	}}
}

func (s *fakeSource) lost(name string) {
	s.events <- discovery.Event{Type: discovery.EventLost, Service: discovery.ServiceReference{Name: name}}
}

// fakeResolver assigns hosts from a table and tracks concurrency. When
// release is set, every call waits for a value on it.
type fakeResolver struct {
	hosts     map[string]string
	release   chan struct{}
	started   chan string
	ignoreCtx bool

	mu        sync.Mutex
	fail      map[string]error
	active    int
	maxActive int
	calls     []string
	finished  int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		hosts:   map[string]string{},
		fail:    map[string]error{},
		started: make(chan string, 64),
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, ref discovery.ServiceReference) (discovery.ServiceReference, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	r.calls = append(r.calls, ref.Name)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.finished++
		r.mu.Unlock()
	}()

	r.started <- ref.Name

	if r.release != nil {
		if r.ignoreCtx {
			<-r.release
		} else {
			select {
			case <-r.release:
			case <-ctx.Done():
				return ref, &discovery.ResolveError{Name: ref.Name, Err: ctx.Err()}
			}
		}
	}

	r.mu.Lock()
	err := r.fail[ref.Name]
	r.mu.Unlock()
	if err != nil {
		return ref, &discovery.ResolveError{Name: ref.Name, Code: 3, Err: err}
	}

	host, ok := r.hosts[ref.Name]
	if !ok {
		host = "10.0.0.1"
	}
	ref.Host = host
	ref.Port = 80
	return ref, nil
}

func (r *fakeResolver) setFail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, name)
		return
	}
	r.fail[name] = err
}

func (r *fakeResolver) stats() (calls []string, maxActive, finished int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), r.maxActive, r.finished
}

// fakeFetcher returns canned readings per address. The first block calls
// wait for a value on release before returning.
type fakeFetcher struct {
	release   chan struct{}
	started   chan string
	ignoreCtx bool

	mu        sync.Mutex
	readings  map[string]*airrohr.Readings
	err       error
	addresses []string
	block     int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		readings: map[string]*airrohr.Readings{},
		started:  make(chan string, 64),
	}
}

func (f *fakeFetcher) FetchReadings(ctx context.Context, hostAddress string) (*airrohr.Readings, error) {
	f.mu.Lock()
	f.addresses = append(f.addresses, hostAddress)
	release, ignoreCtx := f.release, f.ignoreCtx
	wait := f.block > 0 && release != nil
	if wait {
		f.block--
	}
	f.mu.Unlock()

	select {
	case f.started <- hostAddress:
	default:
	}

	if wait {
		if ignoreCtx {
			<-release
		} else {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.readings[hostAddress]; ok {
		return r, nil
	}
	return &airrohr.Readings{Values: []airrohr.Reading{{Type: "SDS_P1", Value: "1.0"}}}, nil
}

// blockNext makes the next n calls wait on release
func (f *fakeFetcher) blockNext(n int, ignoreCtx bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release = make(chan struct{})
	f.ignoreCtx = ignoreCtx
	f.block = n
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addresses...)
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// harness runs a coordinator for the duration of a test
type harness struct {
	c      *Coordinator
	src    *fakeSource
	res    *fakeResolver
	fet    *fakeFetcher
	cancel context.CancelFunc
	errc   chan error

	once sync.Once
	err  error
}

func startHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		src:  newFakeSource(),
		res:  newFakeResolver(),
		fet:  newFakeFetcher(),
		errc: make(chan error, 1),
	}
	h.c = New(h.src, h.res, h.fet, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.c.Run(ctx) }()

	waitUntil(t, "coordinator running", func() bool { return h.c.running.Load() })
	t.Cleanup(func() { _ = h.stop() })
	return h
}

// stop cancels Run and returns its result
func (h *harness) stop() error {
	h.once.Do(func() {
		if h.res.release != nil {
			close(h.res.release)
		}
		if h.fet.release != nil {
			close(h.fet.release)
		}
		h.cancel()
		select {
		case h.err = <-h.errc:
		case <-time.After(2 * time.Second):
			h.err = errors.New("Run did not return")
		}
	})
	return h.err
}

func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitSnapshot(t *testing.T, c *Coordinator, desc string, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	var snap *Snapshot
	waitUntil(t, desc, func() bool {
		snap = c.Snapshot()
		return cond(snap)
	})
	return snap
}

func expectStarted(t *testing.T, r *fakeResolver, want string) {
	t.Helper()
	select {
	case got := <-r.started:
		if got != want {
			t.Fatalf("resolve started for %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("resolve for %q never started", want)
	}
}

func expectFetch(t *testing.T, f *fakeFetcher, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != want {
			t.Fatalf("fetch started for %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch of %q never started", want)
	}
}

func expectNoStart(t *testing.T, r *fakeResolver) {
	t.Helper()
	select {
	case got := <-r.started:
		t.Fatalf("unexpected resolve started for %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
