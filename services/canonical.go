// Package services holds the upstream integrations: the two PDF source
// adapters (canonical announced e-prints and submission previews) and the
// docker sandbox that runs the extractor image.
package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"arxiv-fulltext-service/internal/config"
	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/telemetry"
)

var (
	// ErrDoesNotExist indicates the upstream has no resource for the
	// identifier.
	ErrDoesNotExist = errors.New("no such resource")
	// ErrIO indicates an upstream network failure; retriable from the
	// caller's perspective.
	ErrIO = errors.New("upstream request failed")
	// ErrInvalidURL indicates a request for a URL outside the configured
	// allow-list.
	ErrInvalidURL = errors.New("url not allowed")
)

const renderWaitRetries = 5

// CanonicalPDF retrieves PDFs for announced e-prints from the canonical
// document store.
type CanonicalPDF struct {
	endpoint  *url.URL
	client    *http.Client
	whitelist map[string]bool
	sleep     time.Duration
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	token     string
	metrics   *telemetry.Metrics
}

// NewCanonicalPDF builds the adapter from configuration.
func NewCanonicalPDF(cfg *config.Config) (*CanonicalPDF, error) {
	endpoint, err := url.Parse(cfg.CanonicalEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid canonical endpoint: %v", err)
	}
	whitelist := make(map[string]bool, len(cfg.SourceWhitelist))
	for _, host := range cfg.SourceWhitelist {
		whitelist[host] = true
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "canonical-pdf",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &CanonicalPDF{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.CanonicalVerify},
			},
		},
		whitelist: whitelist,
		sleep:     cfg.PDFRetrySleep,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
	}, nil
}

// WithToken sets an auth token carried opaquely on upstream requests.
func (c *CanonicalPDF) WithToken(token string) *CanonicalPDF {
	c.token = token
	return c
}

// WithMetrics attaches application metrics to the adapter.
func (c *CanonicalPDF) WithMetrics(m *telemetry.Metrics) *CanonicalPDF {
	c.metrics = m
	return c
}

func (c *CanonicalPDF) pdfURL(identifier string) string {
	return c.endpoint.JoinPath("pdf", identifier).String()
}

// validURL enforces the source allow-list. An empty allow-list permits the
// configured endpoint only.
func (c *CanonicalPDF) validURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if len(c.whitelist) == 0 {
		return u.Host == c.endpoint.Host
	}
	return c.whitelist[u.Hostname()]
}

func (c *CanonicalPDF) do(ctx context.Context, method, target string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	resp, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", c.token)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return resp.(*http.Response), nil
}

// Exists determines whether a PDF is available for the identifier.
func (c *CanonicalPDF) Exists(ctx context.Context, identifier string) (bool, error) {
	target := c.pdfURL(identifier)
	if !c.validURL(target) {
		return false, fmt.Errorf("%w: %s", ErrInvalidURL, target)
	}
	resp, err := c.do(ctx, http.MethodHead, target)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected status %d", ErrIO, resp.StatusCode)
}

// Retrieve fetches the PDF for an announced e-print. The classic PDF route
// returns an HTML page while the PDF is still being rendered server-side; in
// that case the adapter sleeps and retries a bounded number of times.
func (c *CanonicalPDF) Retrieve(ctx context.Context, identifier string) (io.ReadCloser, error) {
	target := c.pdfURL(identifier)
	if !c.validURL(target) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, target)
	}

	resp, err := c.fetch(ctx, identifier, target)
	if err != nil {
		return nil, err
	}

	retries := renderWaitRetries
	for !isPDF(resp) {
		resp.Body.Close()
		if retries < 1 {
			return nil, fmt.Errorf("%w: could not retrieve PDF for %s; giving up", ErrIO, identifier)
		}
		logger.Info("got HTML instead of PDF; waiting for render",
			"identifier", identifier, "remaining", retries)
		if c.metrics != nil {
			c.metrics.UpstreamRetries.Add(ctx, 1)
		}
		retries--
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrIO, ctx.Err())
		case <-time.After(c.sleep):
		}
		if resp, err = c.fetch(ctx, identifier, target); err != nil {
			return nil, err
		}
	}
	return resp.Body, nil
}

func (c *CanonicalPDF) fetch(ctx context.Context, identifier, target string) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: no PDF for %s", ErrDoesNotExist, identifier)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: unexpected status for PDF: %d",
			ErrIO, identifier, resp.StatusCode)
	}
	return resp, nil
}

func isPDF(resp *http.Response) bool {
	return resp.Header.Get("Content-Type") == "application/pdf"
}

// IsAvailable checks reachability of the canonical endpoint.
func (c *CanonicalPDF) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint.String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
