package discovery

import (
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/logging"
)

// feedBuffer is how many events may queue before browser callbacks block
const feedBuffer = 64

// Listener receives callbacks from a Browser. Callbacks may arrive on any
// goroutine.
type Listener interface {
	ServiceFound(ref ServiceReference)
	ServiceLost(ref ServiceReference)

	// BrowseFailed is called once if the browser stops on its own
	BrowseFailed(err error)
}

// Browser is a callback-style service browser. Start must not wait for
// the listener to consume events.
type Browser interface {
	Start(serviceType string, l Listener) error
	Stop() error
}

type feedState int

const (
	feedIdle feedState = iota
	feedRunning
	feedTerminated
)

// Feed turns a Browser's callbacks into a channel of Events for one
// discovery session. A Feed runs once: after Stop or a browser failure
// the channel is closed and a new Feed is needed for a new session.
type Feed struct {
	browser     Browser
	serviceType string

	events chan Event
	done   chan struct{}

	stateMu sync.Mutex
	state   feedState

	// closeMu is held shared while delivering, exclusively while closing
	closeMu sync.RWMutex
	closed  bool
	err     error

	stopOnce sync.Once
}

// NewFeed creates a feed for serviceType backed by browser
func NewFeed(browser Browser, serviceType string) *Feed {
	return &Feed{
		browser:     browser,
		serviceType: serviceType,
		events:      make(chan Event, feedBuffer),
		done:        make(chan struct{}),
	}
}

// ServiceType returns the service type this feed browses
func (f *Feed) ServiceType() string {
	return f.serviceType
}

// Events returns the event channel. It is closed when the feed terminates.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Done is closed as soon as the feed begins terminating
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err returns the error that terminated the feed, or nil after a clean Stop
func (f *Feed) Err() error {
	f.closeMu.RLock()
	defer f.closeMu.RUnlock()
	return f.err
}

// Start begins discovery. A start failure terminates the feed and is
// returned as a *DiscoveryError.
func (f *Feed) Start() error {
	f.stateMu.Lock()
	switch f.state {
	case feedRunning:
		f.stateMu.Unlock()
		return ErrFeedStarted
	case feedTerminated:
		f.stateMu.Unlock()
		return ErrFeedTerminated
	}
	f.state = feedRunning
	f.stateMu.Unlock()

	logging.Info("Starting service discovery", zap.String("service_type", f.serviceType))

	if err := f.browser.Start(f.serviceType, feedListener{f}); err != nil {
		derr := newDiscoveryError(OpStart, f.serviceType, err)
		f.terminate(derr, false)
		return derr
	}
	return nil
}

// Stop ends discovery and closes the event channel. Stopping a feed that
// never started only marks it terminated. A browser stop failure is
// returned and also recorded as the feed's error.
func (f *Feed) Stop() error {
	f.stateMu.Lock()
	running := f.state == feedRunning
	f.state = feedTerminated
	f.stateMu.Unlock()
	return f.terminate(nil, running)
}

// terminate closes the feed exactly once. done is closed before the
// browser is stopped so that callbacks blocked on delivery return.
func (f *Feed) terminate(cause error, stopBrowser bool) error {
	var stopErr error
	f.stopOnce.Do(func() {
		close(f.done)

		if stopBrowser {
			if err := f.browser.Stop(); err != nil {
				stopErr = newDiscoveryError(OpStop, f.serviceType, err)
			}
		}

		if cause == nil && stopErr != nil {
			cause = stopErr
		}

		f.stateMu.Lock()
		f.state = feedTerminated
		f.stateMu.Unlock()

		f.closeMu.Lock()
		f.err = cause
		f.closed = true
		close(f.events)
		f.closeMu.Unlock()

		if cause != nil {
			logging.Error("Ending service discovery", zap.Error(cause))
		} else {
			logging.Info("Ending service discovery", zap.String("service_type", f.serviceType))
		}
	})
	return stopErr
}

func (f *Feed) deliver(ev Event) {
	f.closeMu.RLock()
	defer f.closeMu.RUnlock()

	if f.closed {
		return
	}

	logging.LogServiceEvent(ev.Type.String(), ev.Service.Name, f.serviceType)

	select {
	case f.events <- ev:
	case <-f.done:
	}
}

// feedListener adapts browser callbacks onto the feed
type feedListener struct {
	f *Feed
}

func (l feedListener) ServiceFound(ref ServiceReference) {
	l.f.deliver(Event{Type: EventFound, Service: ref})
}

func (l feedListener) ServiceLost(ref ServiceReference) {
	l.f.deliver(Event{Type: EventLost, Service: ref})
}

func (l feedListener) BrowseFailed(err error) {
	// Stopping the browser from inside its own callback could deadlock
	go l.f.terminate(newDiscoveryError(OpBrowse, l.f.serviceType, err), true)
}
