package discovery

import (
	"errors"
	"fmt"
)

// Failure codes carried by DiscoveryError and ResolveError. The values
// match the DNS-SD failure codes reported by platform browsers so that
// codes from other Browser implementations can be passed through as-is.
const (
	FailureInternalError = 0
	FailureAlreadyActive = 3
	FailureMaxLimit      = 4
)

// Op identifies which browser call failed
type Op string

const (
	OpStart  Op = "start"
	OpStop   Op = "stop"
	OpBrowse Op = "browse"
)

var (
	// ErrFeedTerminated is returned when starting a feed that already ran
	ErrFeedTerminated = errors.New("discovery feed already terminated")

	// ErrFeedStarted is returned when starting a feed twice
	ErrFeedStarted = errors.New("discovery feed already started")

	// ErrNotBrowsing is returned by Stop when no discovery is active
	ErrNotBrowsing = errors.New("no discovery in progress")

	// ErrNoAddress is returned when a lookup answers without any address
	ErrNoAddress = errors.New("service has no address records")
)

// DiscoveryError reports a failed start, stop or browse of service discovery.
// It terminates the feed it occurred on.
type DiscoveryError struct {
	Op          Op
	ServiceType string
	Code        int
	Err         error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("network service discovery failed; %s %s: error %d", e.Op, e.ServiceType, e.Code)
	if e.Err != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Err)
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// newDiscoveryError wraps err unless it already is a DiscoveryError, in
// which case its code is kept
func newDiscoveryError(op Op, serviceType string, err error) *DiscoveryError {
	code := FailureInternalError
	var derr *DiscoveryError
	if errors.As(err, &derr) {
		code = derr.Code
		err = derr.Err
	}
	return &DiscoveryError{Op: op, ServiceType: serviceType, Code: code, Err: err}
}

// ResolveError reports a failed resolve of a single service
type ResolveError struct {
	Name string
	Code int
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q failed: error %d (caused by: %v)", e.Name, e.Code, e.Err)
	}
	return fmt.Sprintf("resolve %q failed: error %d", e.Name, e.Code)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the failure code from a DiscoveryError or ResolveError.
// It returns FailureInternalError for any other error.
func ErrorCode(err error) int {
	var derr *DiscoveryError
	if errors.As(err, &derr) {
		return derr.Code
	}
	var rerr *ResolveError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return FailureInternalError
}
