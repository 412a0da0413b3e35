package checkers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxDrainBytes      = 4 << 10
)

// HTTPChecker probes an upstream HTTP endpoint. Any response below 500
// counts as healthy: the upstream answered, even if it rejected the probe.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPChecker returns a checker named name that GETs url. A nil client
// gets a default one with a 10s timeout.
func NewHTTPChecker(name, url string, client *http.Client) *HTTPChecker {
	if name == "" {
		name = url
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPChecker{name: name, url: url, client: client}
}

// Name returns the name of this health check.
func (h *HTTPChecker) Name() string {
	return h.name
}

// Check performs one GET request. Errors never include the URL, which may
// carry credentials in its query.
func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to create request", h.name)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s: http request failed: %w", h.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: unhealthy status code: %d", h.name, resp.StatusCode)
	}

	return nil
}
