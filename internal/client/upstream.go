// Package client provides the upstream HTTP client for forwarded API calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cors-devproxy/internal/config"
	"cors-devproxy/internal/metrics"
	"cors-devproxy/internal/model"
)

// UserAgent is the only header set on upstream requests.
const UserAgent = "cors-devproxy"

// HTTPError is returned when the upstream answered with an error status (>= 400).
type HTTPError struct {
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, e.Reason)
}

// TransportError is returned when no valid HTTP response could be obtained:
// DNS failures, refused connections, timeouts, protocol violations, and body
// read failures all end up here.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is a fully buffered upstream response with a non-error status.
type Response struct {
	StatusCode int
	Body       []byte
}

// UpstreamClient sends GET requests to the upstream API.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Get issues a single GET for target and buffers the whole response body.
//
// A response with status >= 400 yields *HTTPError. Anything that prevents a
// complete response from being read yields *TransportError. The context
// controls the lifetime of the call; canceling it aborts the upstream request.
func (c *UpstreamClient) Get(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)
	return c.Do(req)
}

// Do executes req against the upstream and classifies the result.
func (c *UpstreamClient) Do(req *http.Request) (*Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	start := time.Now()
	resp, body, err := c.roundTrip(req)
	duration := time.Since(start).Seconds()

	if err != nil {
		c.observe(model.OutcomeTransportError, 0, duration)
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.observe(model.OutcomeHTTPError, resp.StatusCode, duration)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Reason:     reasonPhrase(resp),
		}
	}

	c.observe(model.OutcomeSuccess, resp.StatusCode, duration)
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// roundTrip sends req and reads the full body. The returned *http.Response
// has its body already closed.
func (c *UpstreamClient) roundTrip(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp, body, nil
}

func (c *UpstreamClient) observe(kind model.OutcomeKind, status int, seconds float64) {
	if c.metrics == nil {
		return
	}
	code := "none"
	if status != 0 {
		code = strconv.Itoa(status)
	}
	c.metrics.UpstreamDuration.WithLabelValues(kind.String()).Observe(seconds)
	c.metrics.UpstreamOutcomes.WithLabelValues(kind.String(), code).Inc()
}

// reasonPhrase extracts the reason phrase from the upstream status line,
// falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// IsTimeout reports whether err was caused by a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
