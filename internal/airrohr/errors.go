package airrohr

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of a fetch failure
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the node refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-2xx status code
	ErrTypeHTTP
	// ErrTypeParse indicates a body that is not valid sensor data
	ErrTypeParse
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// FetchError reports a failed download of a node's sensor data
type FetchError struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Address    string    // Node address (for context)
	Err        error     // Underlying error (if any)
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed FetchError
func ClassifyNetworkError(err error, address string) *FetchError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &FetchError{Type: ErrTypeTimeout, Message: "request timed out", Address: address, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{
			Type:    ErrTypeDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Address: address,
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &FetchError{Type: ErrTypeConnectionRefused, Message: "node refused connection", Address: address, Err: err}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &FetchError{Type: ErrTypeNetwork, Message: "host unreachable", Address: address, Err: err}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &FetchError{Type: ErrTypeNetwork, Message: "network unreachable", Address: address, Err: err}
		}
	}

	// Check for URL errors
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, address)
	}

	return &FetchError{Type: ErrTypeNetwork, Message: "network error occurred", Address: address, Err: err}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message, address string, err error) *FetchError {
	classified := ClassifyNetworkError(err, address)
	if classified == nil {
		return &FetchError{Type: ErrTypeNetwork, Message: message, Address: address}
	}
	classified.Message = message
	return classified
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, address string) *FetchError {
	return &FetchError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		StatusCode: statusCode,
		Address:    address,
	}
}

// NewParseError creates a parsing error
func NewParseError(message, address string, err error) *FetchError {
	return &FetchError{Type: ErrTypeParse, Message: message, Address: address, Err: err}
}

func errorType(err error) (ErrorType, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	return t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeParse
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return err.Error()
	}

	switch fe.Type {
	case ErrTypeTimeout:
		return "Sensor not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Sensor refused connection"
	case ErrTypeDNS:
		return "Cannot resolve sensor hostname"
	case ErrTypeHTTP:
		return fmt.Sprintf("Sensor error (HTTP %d)", fe.StatusCode)
	case ErrTypeParse:
		return "Unreadable sensor data"
	default:
		return "Network error - check connection"
	}
}
