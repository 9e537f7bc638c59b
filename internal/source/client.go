// Package source performs the HTTP retrievals of a run: the listing page and
// every trip-record file. There is no retry; a failed GET is reported as
// tlc.ErrRetrieval and the caller decides what to abort.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tlcetl/internal/metrics"
	"tlcetl/internal/tlc"

	"golang.org/x/time/rate"
)

// Options configures a Client. The zero value is usable.
type Options struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Timeout bounds each request. 0 means no timeout.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// RequestsPerSecond throttles requests to the source host. 0 means unlimited.
	RequestsPerSecond float64
}

// Client fetches documents from the source host with a consistent
// timeout, user agent and request rate.
type Client struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		client:    opts.HTTPClient,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.userAgent == "" {
		c.userAgent = "tlc-fetch/1.0"
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Get returns the full body of url.
//
// On non-2xx responses the error includes the status code and up to 4KB of
// the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", tlc.ErrRetrieval)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limit: %v", tlc.ErrRetrieval, url, err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", tlc.ErrRetrieval, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(started), 0)
		return nil, fmt.Errorf("%w: GET %s: %v", tlc.ErrRetrieval, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordHTTP(resp.StatusCode, nil, time.Since(started), int64(len(body)))
		return nil, fmt.Errorf("%w: GET %s: http status %d: %s", tlc.ErrRetrieval, url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(started), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %v", tlc.ErrRetrieval, url, err)
	}
	return b, nil
}
