package coordinator

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/discovery"
)

func TestRoundTrip(t *testing.T) {
	h := startHarness(t)
	h.res.hosts["dev-1"] = "1.2.3.4"
	h.fet.readings["1.2.3.4"] = &airrohr.Readings{
		Values: []airrohr.Reading{{Type: "SDS_P2", Value: "12.3"}},
	}

	h.src.found("dev-1")

	snap := waitSnapshot(t, h.c, "readings for dev-1", func(s *Snapshot) bool {
		r, ok := s.Get("dev-1")
		return ok && r.Readings != nil
	})

	rec, _ := snap.Get("dev-1")
	if rec.Service.HostAddress() != "1.2.3.4" {
		t.Errorf("HostAddress() = %q, want 1.2.3.4", rec.Service.HostAddress())
	}
	pm, ok := rec.Readings.Find(airrohr.KindPM25)
	if !ok {
		t.Fatal("no PM2.5 reading")
	}
	if got := pm.Format(); got != "12.3 µg/m³" {
		t.Errorf("PM2.5 = %q, want %q", got, "12.3 µg/m³")
	}
	if rec.Status() != StatusReady {
		t.Errorf("Status() = %v, want %v", rec.Status(), StatusReady)
	}
	if got := h.fet.calls(); !reflect.DeepEqual(got, []string{"1.2.3.4"}) {
		t.Errorf("fetches = %v, want one fetch of 1.2.3.4", got)
	}
}

func TestFoundIsVisibleBeforeResolve(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")

	snap := waitSnapshot(t, h.c, "dev-1 visible", func(s *Snapshot) bool { return s.Len() == 1 })
	rec, _ := snap.Get("dev-1")
	if !rec.Resolving {
		t.Error("record should be resolving")
	}
	if rec.Status() != StatusResolving {
		t.Errorf("Status() = %v", rec.Status())
	}
	if rec.URL() != "" {
		t.Errorf("URL() = %q, want empty while resolving", rec.URL())
	}
}

func TestResolvesAreSerialized(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("a")
	h.src.found("b")

	expectStarted(t, h.res, "a")
	expectNoStart(t, h.res)

	// both visible while only one resolve runs
	waitSnapshot(t, h.c, "both visible", func(s *Snapshot) bool { return s.Len() == 2 })

	h.res.release <- struct{}{}
	expectStarted(t, h.res, "b")
	h.res.release <- struct{}{}

	waitSnapshot(t, h.c, "both ready", func(s *Snapshot) bool {
		a, _ := s.Get("a")
		b, _ := s.Get("b")
		return a.Readings != nil && b.Readings != nil
	})

	if _, maxActive, _ := h.res.stats(); maxActive != 1 {
		t.Errorf("max concurrent resolves = %d, want 1", maxActive)
	}
}

func TestResolveConcurrencyUnderLoad(t *testing.T) {
	h := startHarness(t)

	names := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	for _, n := range names {
		h.src.found(n)
	}

	waitSnapshot(t, h.c, "all ready", func(s *Snapshot) bool {
		for _, n := range names {
			if r, ok := s.Get(n); !ok || r.Readings == nil {
				return false
			}
		}
		return true
	})

	calls, maxActive, _ := h.res.stats()
	if maxActive != 1 {
		t.Errorf("max concurrent resolves = %d, want 1", maxActive)
	}
	if len(calls) != len(names) {
		t.Errorf("resolve calls = %d, want %d", len(calls), len(names))
	}
	if n := testutil.ToFloat64(h.c.metrics.resolving); n != 0 {
		t.Errorf("in-flight gauge = %v after all resolves, want 0", n)
	}
}

func TestLostWinsOverLateResolve(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})
	h.res.ignoreCtx = true

	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")

	h.src.lost("dev-1")
	waitSnapshot(t, h.c, "dev-1 removed", func(s *Snapshot) bool { return s.Len() == 0 })

	// the resolve succeeds after the device is gone
	h.res.release <- struct{}{}

	discarded := h.c.metrics.discarded.WithLabelValues("resolve")
	waitUntil(t, "late completion discarded", func() bool { return testutil.ToFloat64(discarded) == 1 })

	if s := h.c.Snapshot(); s.Len() != 0 {
		t.Errorf("device reappeared: %v", s.Names())
	}
	if calls := h.fet.calls(); len(calls) != 0 {
		t.Errorf("fetch started for lost device: %v", calls)
	}
}

func TestLostCancelsPendingResolve(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("a")
	h.src.found("b")
	expectStarted(t, h.res, "a")

	// b is queued on the gate; losing it must not leave it waiting
	h.src.lost("b")
	waitSnapshot(t, h.c, "b removed", func(s *Snapshot) bool { return s.Len() == 1 })

	h.res.release <- struct{}{}
	waitSnapshot(t, h.c, "a ready", func(s *Snapshot) bool {
		r, _ := s.Get("a")
		return r.Readings != nil
	})

	expectNoStart(t, h.res)
	if calls, _, _ := h.res.stats(); !reflect.DeepEqual(calls, []string{"a"}) {
		t.Errorf("resolve calls = %v, want [a]", calls)
	}
}

func TestLostThenFoundDiscardsOldGeneration(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})
	h.res.ignoreCtx = true

	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")
	h.src.lost("dev-1")
	h.src.found("dev-1")

	waitSnapshot(t, h.c, "dev-1 recreated", func(s *Snapshot) bool {
		r, ok := s.Get("dev-1")
		return ok && r.Resolving
	})

	// first resolve completes against the old record
	h.res.release <- struct{}{}
	expectStarted(t, h.res, "dev-1")

	discarded := h.c.metrics.discarded.WithLabelValues("resolve")
	waitUntil(t, "stale completion discarded", func() bool { return testutil.ToFloat64(discarded) == 1 })

	rec, _ := h.c.Snapshot().Get("dev-1")
	if !rec.Resolving {
		t.Error("stale completion must not finish the new record's resolve")
	}

	h.res.release <- struct{}{}
	waitSnapshot(t, h.c, "dev-1 ready", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.Readings != nil
	})
}

func TestLostWinsOverLateFetch(t *testing.T) {
	h := startHarness(t)
	h.fet.blockNext(1, true)

	h.src.found("dev-1")
	expectFetch(t, h.fet, "10.0.0.1")

	h.src.lost("dev-1")
	waitSnapshot(t, h.c, "dev-1 removed", func(s *Snapshot) bool { return s.Len() == 0 })

	// the fetch returns readings after the device is gone
	h.fet.release <- struct{}{}

	discarded := h.c.metrics.discarded.WithLabelValues("fetch")
	waitUntil(t, "late fetch discarded", func() bool { return testutil.ToFloat64(discarded) == 1 })

	if s := h.c.Snapshot(); s.Len() != 0 {
		t.Errorf("device reappeared: %v", s.Names())
	}
	if n := testutil.ToFloat64(h.c.metrics.fetches.WithLabelValues("success")); n != 0 {
		t.Errorf("fetches counted = %v, want 0", n)
	}
}

func TestLostThenFoundDiscardsStaleFetch(t *testing.T) {
	h := startHarness(t)
	h.fet.blockNext(1, true)

	h.src.found("dev-1")
	expectFetch(t, h.fet, "10.0.0.1")

	h.src.lost("dev-1")
	h.src.found("dev-1")

	// the new record resolves and fetches while the old fetch is still out
	expectFetch(t, h.fet, "10.0.0.1")
	snap := waitSnapshot(t, h.c, "dev-1 ready again", func(s *Snapshot) bool {
		r, ok := s.Get("dev-1")
		return ok && r.Readings != nil
	})
	current, _ := snap.Get("dev-1")

	h.fet.release <- struct{}{}

	discarded := h.c.metrics.discarded.WithLabelValues("fetch")
	waitUntil(t, "stale fetch discarded", func() bool { return testutil.ToFloat64(discarded) == 1 })

	rec, ok := h.c.Snapshot().Get("dev-1")
	if !ok {
		t.Fatal("dev-1 missing after stale fetch")
	}
	if rec.Readings != current.Readings {
		t.Error("stale fetch replaced the new record's readings")
	}
	if rec.Status() != StatusReady {
		t.Errorf("Status() = %v, want %v", rec.Status(), StatusReady)
	}
	if n := testutil.ToFloat64(h.c.metrics.fetches.WithLabelValues("success")); n != 1 {
		t.Errorf("fetches counted = %v, want 1", n)
	}
}

func TestFoundWhileResolvingIsIgnored(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")
	h.src.found("dev-1")
	h.src.found("other")

	// "other" is processed after the duplicate
	waitSnapshot(t, h.c, "other visible", func(s *Snapshot) bool { return s.Len() == 2 })

	h.res.release <- struct{}{}
	expectStarted(t, h.res, "other")
	h.res.release <- struct{}{}

	waitSnapshot(t, h.c, "both ready", func(s *Snapshot) bool {
		a, _ := s.Get("dev-1")
		b, _ := s.Get("other")
		return a.Readings != nil && b.Readings != nil
	})
	expectNoStart(t, h.res)

	if calls, _, _ := h.res.stats(); !reflect.DeepEqual(calls, []string{"dev-1", "other"}) {
		t.Errorf("resolve calls = %v, want one per device", calls)
	}
}

func TestFoundAgainAfterResolveKeepsReadings(t *testing.T) {
	h := startHarness(t)

	h.src.found("dev-1")
	waitSnapshot(t, h.c, "dev-1 ready", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.Readings != nil
	})

	h.res.release = make(chan struct{})
	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")

	rec := waitSnapshot(t, h.c, "dev-1 re-resolving", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.Resolving
	})
	r, _ := rec.Get("dev-1")
	if r.Service.Resolved() {
		t.Error("re-announced service should be unresolved")
	}
	if r.Readings == nil {
		t.Error("readings should survive a re-announce")
	}
}

func TestKeySetTracksUnmatchedFounds(t *testing.T) {
	h := startHarness(t)

	h.src.found("a")
	h.src.found("b")
	h.src.found("c")
	h.src.lost("b")
	h.src.found("d")
	h.src.lost("a")
	h.src.lost("never-seen")
	h.src.found("b")

	want := []string{"b", "c", "d"}
	snap := waitSnapshot(t, h.c, "final key set", func(s *Snapshot) bool {
		return reflect.DeepEqual(s.Names(), want)
	})

	devices := snap.Devices()
	got := make([]string, 0, len(devices))
	for _, d := range devices {
		got = append(got, d.Name)
	}
	if !sort.StringsAreSorted(got) {
		t.Errorf("Devices() not sorted: %v", got)
	}
}

func TestResolveFailureLeavesDeviceUnresolved(t *testing.T) {
	h := startHarness(t)
	h.res.setFail("dev-1", errors.New("no answer"))

	h.src.found("dev-1")

	snap := waitSnapshot(t, h.c, "resolve failure", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.ResolveError != ""
	})
	rec, _ := snap.Get("dev-1")
	if rec.Resolving || rec.Service.Resolved() || rec.Readings != nil {
		t.Errorf("unexpected record after failure: %+v", rec)
	}
	if rec.Status() != StatusUnresolved {
		t.Errorf("Status() = %v", rec.Status())
	}
	if calls := h.fet.calls(); len(calls) != 0 {
		t.Errorf("fetch issued for unresolved device: %v", calls)
	}

	// no automatic retry
	expectStarted(t, h.res, "dev-1")
	expectNoStart(t, h.res)

	// manual re-trigger
	h.res.setFail("dev-1", nil)
	if err := h.c.Resolve(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	waitSnapshot(t, h.c, "dev-1 ready", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.Readings != nil && r.ResolveError == ""
	})
}

func TestFetchFailureRecorded(t *testing.T) {
	h := startHarness(t)
	h.fet.setErr(&airrohr.FetchError{Type: airrohr.ErrTypeTimeout, Message: "slow"})

	h.src.found("dev-1")

	snap := waitSnapshot(t, h.c, "fetch failure", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.FetchError != ""
	})
	rec, _ := snap.Get("dev-1")
	if rec.Readings != nil {
		t.Error("readings should be absent after a failed fetch")
	}
	if !rec.Service.Resolved() {
		t.Error("fetch failure must not unresolve the device")
	}
	if rec.FetchError != "Sensor not responding (timeout)" {
		t.Errorf("FetchError = %q", rec.FetchError)
	}
	if rec.Status() != StatusResolved {
		t.Errorf("Status() = %v", rec.Status())
	}
}

func TestCommands(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	if err := h.c.Refresh(ctx, "missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Refresh(missing) = %v, want ErrUnknownDevice", err)
	}
	if err := h.c.Resolve(ctx, "missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Resolve(missing) = %v, want ErrUnknownDevice", err)
	}

	h.res.setFail("dev-1", errors.New("no answer"))
	h.src.found("dev-1")
	waitSnapshot(t, h.c, "resolve failure", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.ResolveError != ""
	})
	if err := h.c.Refresh(ctx, "dev-1"); !errors.Is(err, ErrNotResolved) {
		t.Errorf("Refresh(unresolved) = %v, want ErrNotResolved", err)
	}

	h.res.setFail("dev-1", nil)
	if err := h.c.Resolve(ctx, "dev-1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	waitSnapshot(t, h.c, "dev-1 ready", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return r.Readings != nil
	})

	if err := h.c.Refresh(ctx, "dev-1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitUntil(t, "second fetch", func() bool { return len(h.fet.calls()) == 2 })
}

func TestResolveIsNoOpWhileResolving(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("dev-1")
	expectStarted(t, h.res, "dev-1")

	if err := h.c.Resolve(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h.res.release <- struct{}{}
	waitSnapshot(t, h.c, "dev-1 resolved", func(s *Snapshot) bool {
		r, _ := s.Get("dev-1")
		return !r.Resolving
	})
	expectNoStart(t, h.res)
}

func TestCommandsOutsideRun(t *testing.T) {
	c := New(newFakeSource(), newFakeResolver(), newFakeFetcher())
	if err := c.Resolve(context.Background(), "x"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Resolve() before Run = %v, want ErrNotRunning", err)
	}

	h := startHarness(t)
	if err := h.stop(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if err := h.c.Refresh(context.Background(), "x"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Refresh() after Run = %v, want ErrNotRunning", err)
	}
}

func TestPeriodicRefresh(t *testing.T) {
	h := startHarness(t, WithRefreshInterval(10*time.Millisecond))

	h.src.found("dev-1")
	waitUntil(t, "repeated fetches", func() bool { return len(h.fet.calls()) >= 3 })
}

func TestRunReturnsFeedError(t *testing.T) {
	src := newFakeSource()
	c := New(src, newFakeResolver(), newFakeFetcher())

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	want := &discovery.DiscoveryError{Op: discovery.OpBrowse, Code: discovery.FailureInternalError, Err: errors.New("socket closed")}
	src.found("dev-1")
	src.fail(want)

	select {
	case err := <-errc:
		var derr *discovery.DiscoveryError
		if !errors.As(err, &derr) || derr != want {
			t.Errorf("Run() = %v, want %v", err, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the feed failed")
	}

	if err := c.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunStartFailure(t *testing.T) {
	src := newFakeSource()
	src.startErr = &discovery.DiscoveryError{Op: discovery.OpStart, Code: discovery.FailureMaxLimit}
	c := New(src, newFakeResolver(), newFakeFetcher())

	err := c.Run(context.Background())
	if discovery.ErrorCode(err) != discovery.FailureMaxLimit {
		t.Errorf("Run() = %v, want start failure with code %d", err, discovery.FailureMaxLimit)
	}
}

func TestRunStopsFeedOnCancel(t *testing.T) {
	h := startHarness(t)
	h.src.found("dev-1")
	waitSnapshot(t, h.c, "dev-1 visible", func(s *Snapshot) bool { return s.Len() == 1 })

	if err := h.stop(); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	h.src.mu.Lock()
	stops := h.src.stops
	h.src.mu.Unlock()
	if stops != 1 {
		t.Errorf("feed stopped %d times, want 1", stops)
	}
}

func TestRunAbandonsBlockedResolveOnCancel(t *testing.T) {
	h := startHarness(t)
	h.res.release = make(chan struct{})

	h.src.found("a")
	h.src.found("b")
	expectStarted(t, h.res, "a")

	h.cancel()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return with a resolve in flight")
	}
	h.once.Do(func() {})
}

func TestRunAbandonsResolveIgnoringContext(t *testing.T) {
	h := startHarness(t, WithResolveTimeout(50*time.Millisecond))
	h.res.release = make(chan struct{})
	h.res.ignoreCtx = true
	updates, _ := h.c.Subscribe()

	h.src.found("a")
	expectStarted(t, h.res, "a")

	h.cancel()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return while a resolve was stuck")
	}
	h.once.Do(func() {})

	for range updates {
	}

	// the stuck resolve finishes after Run and its result is dropped
	close(h.res.release)
	waitUntil(t, "abandoned resolve finished", func() bool {
		_, _, finished := h.res.stats()
		return finished == 1
	})
	if s := h.c.Snapshot(); s.Len() != 1 {
		t.Errorf("snapshot changed after Run returned: %v", s.Names())
	}
}

func TestRunAbandonsFetchIgnoringContext(t *testing.T) {
	h := startHarness(t, WithFetchTimeout(50*time.Millisecond))
	h.fet.blockNext(1, true)

	h.src.found("a")
	expectFetch(t, h.fet, "10.0.0.1")

	h.cancel()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return while a fetch was stuck")
	}
	h.once.Do(func() {})
	close(h.fet.release)
}

func TestSubscribeLatestWins(t *testing.T) {
	h := startHarness(t)

	updates, cancel := h.c.Subscribe()
	defer cancel()

	first := <-updates
	if first.Len() != 0 {
		t.Errorf("initial snapshot has %d devices", first.Len())
	}

	// publish several transitions without reading
	h.src.found("a")
	h.src.found("b")
	waitSnapshot(t, h.c, "both ready", func(s *Snapshot) bool {
		a, _ := s.Get("a")
		b, _ := s.Get("b")
		return a.Readings != nil && b.Readings != nil
	})

	latest := h.c.Snapshot()
	received := 0
	for done := false; !done; {
		select {
		case got := <-updates:
			received++
			if got.Seq > latest.Seq {
				t.Fatalf("subscriber got seq %d beyond latest %d", got.Seq, latest.Seq)
			}
			done = got.Seq == latest.Seq
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber never saw seq %d", latest.Seq)
		}
	}
	// six transitions were published; an unread subscriber keeps only the newest
	if received > 2 {
		t.Errorf("received %d snapshots, want intermediate ones coalesced", received)
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestSubscribeClosedWhenRunReturns(t *testing.T) {
	h := startHarness(t)
	updates, _ := h.c.Subscribe()
	<-updates

	if err := h.stop(); err != nil {
		t.Fatal(err)
	}
	for range updates {
	}

	late, _ := h.c.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Run returned should yield a closed channel")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	h := startHarness(t)
	h.src.found("a")
	snap := waitSnapshot(t, h.c, "a ready", func(s *Snapshot) bool {
		r, _ := s.Get("a")
		return r.Readings != nil
	})

	m := snap.Map()
	delete(m, "a")
	if snap.Len() != 1 {
		t.Error("mutating Map() changed the snapshot")
	}

	h.src.lost("a")
	waitSnapshot(t, h.c, "a gone", func(s *Snapshot) bool { return s.Len() == 0 })
	if _, ok := snap.Get("a"); !ok {
		t.Error("older snapshot changed after a transition")
	}
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := startHarness(t, WithMetrics(m))

	h.src.found("a")
	h.src.found("b")
	h.src.lost("b")
	waitSnapshot(t, h.c, "a ready", func(s *Snapshot) bool {
		r, ok := s.Get("a")
		return ok && r.Readings != nil && s.Len() == 1
	})

	if got := testutil.ToFloat64(m.events.WithLabelValues("found")); got != 2 {
		t.Errorf("found events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.devices); got != 1 {
		t.Errorf("devices gauge = %v, want 1", got)
	}
	waitUntil(t, "fetch counted", func() bool {
		return testutil.ToFloat64(m.fetches.WithLabelValues("success")) >= 1
	})

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount() = %d, %v", n, err)
	}
}
