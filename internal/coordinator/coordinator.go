package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
	"github.com/muurk/airscout/internal/logging"
)

const (
	// DefaultResolveTimeout bounds a single resolve once it holds the gate
	DefaultResolveTimeout = 10 * time.Second

	// DefaultFetchTimeout bounds a single data.json download
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrAlreadyRunning is returned by a second call to Run
	ErrAlreadyRunning = errors.New("coordinator already running")

	// ErrNotRunning is returned by commands issued outside Run
	ErrNotRunning = errors.New("coordinator not running")

	// ErrUnknownDevice is returned for commands naming no known device
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNotResolved is returned when refreshing a device without an address
	ErrNotResolved = errors.New("device not resolved")
)

// Source is a single-use stream of discovery events. *discovery.Feed
// implements it.
type Source interface {
	Start() error
	Events() <-chan discovery.Event
	Stop() error
	Err() error
}

// Fetcher downloads current readings from a node. *airrohr.Client
// implements it.
type Fetcher interface {
	FetchReadings(ctx context.Context, hostAddress string) (*airrohr.Readings, error)
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithResolveTimeout sets the per-resolve timeout
func WithResolveTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.resolveTimeout = d
		}
	}
}

// WithFetchTimeout sets the per-fetch timeout
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithRefreshInterval re-fetches every resolved device at interval.
// Zero disables periodic refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.refreshInterval = d
	}
}

// WithMetrics records coordinator activity in m
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

type taskKind int

const (
	taskResolve taskKind = iota
	taskFetch
)

func (k taskKind) String() string {
	if k == taskResolve {
		return "resolve"
	}
	return "fetch"
}

// completion is the outcome of a resolve or fetch, applied by the loop
type completion struct {
	kind       taskKind
	name       string
	generation uint64
	service    discovery.ServiceReference
	address    string
	readings   *airrohr.Readings
	err        error
	elapsed    time.Duration
}

type commandKind int

const (
	cmdResolve commandKind = iota
	cmdRefresh
)

type command struct {
	kind  commandKind
	name  string
	reply chan error
}

// entry is the loop-owned state behind one DeviceRecord
type entry struct {
	record     DeviceRecord
	generation uint64

	// ctx scopes every task started for this generation; cancelled on Lost
	ctx    context.Context
	cancel context.CancelFunc

	fetching int
}

// Coordinator drives discover, resolve and fetch for every node seen on the
// source and publishes the resulting device map as immutable snapshots.
//
// All state transitions happen on the goroutine running Run. Resolves
// execute one at a time; fetches run concurrently.
type Coordinator struct {
	source   Source
	resolver discovery.Resolver
	fetcher  Fetcher

	resolveTimeout  time.Duration
	fetchTimeout    time.Duration
	refreshInterval time.Duration
	metrics         *Metrics
	now             func() time.Time

	gate     *semaphore.Weighted
	results  chan completion
	commands chan command
	quit     chan struct{}
	running  atomic.Bool

	// owned by the Run goroutine
	runCtx  context.Context
	records map[string]*entry
	nextGen uint64
	seq     uint64

	snapshot atomic.Pointer[Snapshot]

	subsMu     sync.Mutex
	subs       map[chan *Snapshot]struct{}
	subsClosed bool
}

// New creates a coordinator. Run must be called to start discovery.
func New(source Source, resolver discovery.Resolver, fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:         source,
		resolver:       resolver,
		fetcher:        fetcher,
		resolveTimeout: DefaultResolveTimeout,
		fetchTimeout:   DefaultFetchTimeout,
		now:            time.Now,
		gate:           semaphore.NewWeighted(1),
		results:        make(chan completion),
		commands:       make(chan command),
		quit:           make(chan struct{}),
		records:        make(map[string]*entry),
		subs:           make(map[chan *Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	c.snapshot.Store(NewSnapshot(0, c.now(), nil))
	return c
}

// Run starts the source and processes events until the source terminates
// or ctx is cancelled. It returns the source's error in the first case and
// nil in the second. A Coordinator runs once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = runCtx

	if err := c.source.Start(); err != nil {
		c.shutdown(cancel)
		return err
	}

	var tick <-chan time.Time
	if c.refreshInterval > 0 {
		ticker := time.NewTicker(c.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	events := c.source.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				err := c.source.Err()
				c.shutdown(cancel)
				return err
			}
			c.handleEvent(ev)

		case res := <-c.results:
			c.handleCompletion(res)

		case cmd := <-c.commands:
			cmd.reply <- c.handleCommand(cmd)

		case <-tick:
			c.refreshAll()

		case <-ctx.Done():
			if err := c.source.Stop(); err != nil {
				logging.Warn("Failed to stop discovery", zap.Error(err))
			}
			c.shutdown(cancel)
			return nil
		}
	}
}

// shutdown abandons in-flight tasks and closes subscriber channels. Tasks
// are not awaited; whatever they return after this point is dropped by
// complete.
func (c *Coordinator) shutdown(cancel context.CancelFunc) {
	close(c.quit)
	cancel()

	c.subsMu.Lock()
	c.subsClosed = true
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	c.subsMu.Unlock()
}

// Snapshot returns the latest published device map
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers miss intermediate snapshots, never the latest one. The
// channel is closed by cancel or when Run returns.
func (c *Coordinator) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.subsClosed {
		close(ch)
		return ch, func() {}
	}

	ch <- c.Snapshot()
	c.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

// Resolve re-triggers resolution of a known device. It is a no-op while a
// resolve for the device is pending.
func (c *Coordinator) Resolve(ctx context.Context, name string) error {
	return c.send(ctx, command{kind: cmdResolve, name: name})
}

// Refresh fetches fresh readings for a resolved device
func (c *Coordinator) Refresh(ctx context.Context, name string) error {
	return c.send(ctx, command{kind: cmdRefresh, name: name})
}

func (c *Coordinator) send(ctx context.Context, cmd command) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	cmd.reply = make(chan error, 1)

	select {
	case c.commands <- cmd:
	case <-c.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) handleEvent(ev discovery.Event) {
	c.metrics.events.WithLabelValues(ev.Type.String()).Inc()

	var changed bool
	switch ev.Type {
	case discovery.EventFound:
		changed = c.found(ev.Service)
	case discovery.EventLost:
		changed = c.lost(ev.Service.Name)
	}
	if changed {
		c.publish()
	}
}

func (c *Coordinator) found(ref discovery.ServiceReference) bool {
	e, ok := c.records[ref.Name]
	if ok && e.record.Resolving {
		logging.Debug("Ignoring announcement while resolving", zap.String("service", ref.Name))
		return false
	}

	now := c.now()
	if !ok {
		c.nextGen++
		ctx, cancel := context.WithCancel(c.runCtx)
		e = &entry{
			generation: c.nextGen,
			ctx:        ctx,
			cancel:     cancel,
			record:     DeviceRecord{Name: ref.Name, FoundAt: now},
		}
		c.records[ref.Name] = e
		logging.Info("Device found", zap.String("service", ref.Name))
	}

	e.record.Service = ref.Unresolved()
	e.record.ResolveError = ""
	e.record.UpdatedAt = now
	c.startResolve(e)
	return true
}

func (c *Coordinator) lost(name string) bool {
	e, ok := c.records[name]
	if !ok {
		return false
	}
	e.cancel()
	delete(c.records, name)
	logging.Info("Device lost", zap.String("service", name))
	return true
}

func (c *Coordinator) startResolve(e *entry) {
	e.record.Resolving = true
	go c.resolve(e.ctx, e.record.Name, e.generation, e.record.Service)
}

// resolve waits for the gate, then performs one Resolve
func (c *Coordinator) resolve(ctx context.Context, name string, generation uint64, ref discovery.ServiceReference) {
	res := completion{kind: taskResolve, name: name, generation: generation}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		res.err = &discovery.ResolveError{Name: name, Code: discovery.FailureInternalError, Err: err}
		c.complete(res)
		return
	}

	c.metrics.resolving.Inc()
	rctx, cancel := context.WithTimeout(ctx, c.resolveTimeout)
	start := time.Now()
	res.service, res.err = c.resolver.Resolve(rctx, ref)
	res.elapsed = time.Since(start)
	cancel()
	c.metrics.resolving.Dec()
	c.gate.Release(1)

	c.complete(res)
}

func (c *Coordinator) startFetch(e *entry) {
	e.fetching++
	go c.fetch(e.ctx, e.record.Name, e.generation, e.record.Service.HostAddress())
}

func (c *Coordinator) fetch(ctx context.Context, name string, generation uint64, address string) {
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	readings, err := c.fetcher.FetchReadings(fctx, address)
	c.complete(completion{
		kind:       taskFetch,
		name:       name,
		generation: generation,
		address:    address,
		readings:   readings,
		err:        err,
		elapsed:    time.Since(start),
	})
}

// complete hands a result to the loop, or drops it once the loop has exited
func (c *Coordinator) complete(res completion) {
	select {
	case c.results <- res:
	case <-c.quit:
	}
}

func (c *Coordinator) handleCompletion(res completion) {
	e, ok := c.records[res.name]
	if !ok || e.generation != res.generation {
		c.metrics.discarded.WithLabelValues(res.kind.String()).Inc()
		logging.Debug("Discarding completion for departed device",
			zap.String("service", res.name),
			zap.Stringer("task", res.kind),
		)
		return
	}

	switch res.kind {
	case taskResolve:
		c.resolved(e, res)
	case taskFetch:
		c.fetched(e, res)
	}
	c.publish()
}

func (c *Coordinator) resolved(e *entry, res completion) {
	c.metrics.resolves.WithLabelValues(outcome(res.err)).Inc()
	c.metrics.resolveDuration.Observe(res.elapsed.Seconds())

	e.record.Resolving = false
	e.record.UpdatedAt = c.now()

	if res.err == nil && !res.service.Resolved() {
		res.err = &discovery.ResolveError{Name: e.record.Name, Code: discovery.FailureInternalError, Err: discovery.ErrNoAddress}
	}
	if res.err != nil {
		logging.LogResolve(e.record.Name, "", res.elapsed, res.err)
		e.record.ResolveError = res.err.Error()
		return
	}

	res.service.Name = e.record.Name
	e.record.Service = res.service
	e.record.ResolveError = ""
	logging.LogResolve(e.record.Name, res.service.HostAddress(), res.elapsed, nil)

	c.startFetch(e)
}

func (c *Coordinator) fetched(e *entry, res completion) {
	c.metrics.fetches.WithLabelValues(outcome(res.err)).Inc()
	c.metrics.fetchDuration.Observe(res.elapsed.Seconds())

	e.fetching--
	e.record.UpdatedAt = c.now()

	if res.err != nil {
		logging.LogFetch(e.record.Name, res.address, 0, res.err)
		e.record.FetchError = airrohr.GetShortErrorMessage(res.err)
		return
	}

	logging.LogFetch(e.record.Name, res.address, len(res.readings.Values), nil)
	e.record.Readings = res.readings
	e.record.FetchError = ""
}

func (c *Coordinator) handleCommand(cmd command) error {
	e, ok := c.records[cmd.name]
	if !ok {
		return ErrUnknownDevice
	}

	switch cmd.kind {
	case cmdResolve:
		if e.record.Resolving {
			return nil
		}
		e.record.ResolveError = ""
		e.record.UpdatedAt = c.now()
		c.startResolve(e)
		c.publish()
	case cmdRefresh:
		if !e.record.Service.Resolved() {
			return ErrNotResolved
		}
		c.startFetch(e)
	}
	return nil
}

// refreshAll fetches every resolved device that has no fetch outstanding
func (c *Coordinator) refreshAll() {
	for _, e := range c.records {
		if e.record.Resolving || e.fetching > 0 || !e.record.Service.Resolved() {
			continue
		}
		c.startFetch(e)
	}
}

// publish stores a new snapshot and offers it to every subscriber
func (c *Coordinator) publish() {
	c.seq++
	devices := make(map[string]DeviceRecord, len(c.records))
	for name, e := range c.records {
		devices[name] = e.record
	}
	c.metrics.devices.Set(float64(len(devices)))

	snap := &Snapshot{Seq: c.seq, Taken: c.now(), devices: devices}
	c.snapshot.Store(snap)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
