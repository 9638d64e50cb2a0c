package airrohr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/muurk/airscout/internal/version"
)

const (
	// DataPath is where airRohr firmware serves its current measurements
	DataPath = "/data.json"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a response is read
	maxBodySize = 1 << 20
)

// Client downloads sensor data from airRohr nodes. A Client is safe for
// concurrent use. Requests are never retried.
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// UserAgent is sent with each request
	UserAgent string

	now func() time.Time
}

// NewClient creates a client with DefaultTimeout
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		UserAgent:  version.UserAgent(),
		now:        time.Now,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// DataURL returns the data.json URL for a host address ("10.0.0.5",
// "10.0.0.5:8080" or "[fe80::1]")
func DataURL(hostAddress string) string {
	return "http://" + hostAddress + DataPath
}

// FetchReadings performs one GET of the node's data.json and decodes it.
// All failures are returned as *FetchError.
func (c *Client) FetchReadings(ctx context.Context, hostAddress string) (*Readings, error) {
	if hostAddress == "" {
		return nil, &FetchError{Type: ErrTypeNetwork, Message: "no host address"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DataURL(hostAddress), nil)
	if err != nil {
		return nil, &FetchError{Type: ErrTypeNetwork, Message: "failed to create request", Address: hostAddress, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{Type: ErrTypeTimeout, Message: "request cancelled", Address: hostAddress, Err: ctxErr}
		}
		return nil, NewNetworkError("sensor unreachable", hostAddress, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPError(resp.StatusCode, hostAddress)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewNetworkError("failed to read response body", hostAddress, err)
	}

	readings, err := ParseReadings(body)
	if err != nil {
		return nil, NewParseError(fmt.Sprintf("invalid data from %s", hostAddress), hostAddress, err)
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	readings.FetchedAt = now()
	return readings, nil
}
