// Package client provides the outbound HTTP client for provider APIs.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
)

// ErrTimeout marks upstream calls that did not complete within the configured timeout.
var ErrTimeout = errors.New("upstream timeout")

// UpstreamClient sends relay requests to provider APIs.
type UpstreamClient struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with the configured timeout.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	// No dial or TLS handshake timeouts: the per-call deadline in Post is the
	// only bound, so a 504 always means the configured timeout elapsed.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{Transport: transport},
		timeout:    cfg.Upstream.Timeout(),
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

// Timeout returns the bound applied to each call.
func (c *UpstreamClient) Timeout() time.Duration {
	return c.timeout
}

// Post sends body to url and returns the fully read response. The whole
// exchange, including reading the response body, must finish within the
// client timeout; otherwise the returned error wraps ErrTimeout. The provider
// name is used only for logs and metrics.
func (c *UpstreamClient) Post(ctx context.Context, provider, url string, header http.Header, body []byte) (*model.RelayResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request",
		"provider", provider,
		"path", req.URL.Path,
		"bytes_in", len(body),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(ctx, provider, start, fmt.Errorf("upstream request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, provider, start, fmt.Errorf("read upstream response: %w", err))
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()
	}

	c.logger.Debug("upstream response",
		"provider", provider,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes_out", len(data),
	)

	return &model.RelayResponse{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

// fail records a failed call and wraps timeouts with ErrTimeout.
func (c *UpstreamClient) fail(ctx context.Context, provider string, start time.Time, err error) error {
	reason := "error"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
		reason = "timeout"
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		c.metrics.UpstreamFailures.WithLabelValues(provider, reason).Inc()
	}
	return err
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
