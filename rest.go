package amaterasu

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RESTClient issues authenticated requests through the rate limiter.
// It owns the HTTP exchange only; what the routes mean is the helper
// catalog's business (restapi.go).
type RESTClient struct {
	http    *http.Client
	base    string
	auth    string
	limiter *RateLimiter
	log     *zap.Logger
}

// NewRESTClient builds a REST client for the given bot token. A
// leading "Bot " prefix is stripped and re-applied canonically.
func NewRESTClient(token string, opts ...RESTOpt) *RESTClient {
	c := &RESTClient{
		http:    newHTTPClient(),
		base:    apiBase,
		auth:    "Bot " + strings.TrimPrefix(token, "Bot "),
		limiter: NewRateLimiter(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RESTOpt customizes a RESTClient.
type RESTOpt func(*RESTClient)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) RESTOpt {
	return func(c *RESTClient) { c.http = hc }
}

// WithBaseURL points the client at a different API origin.
func WithBaseURL(base string) RESTOpt {
	return func(c *RESTClient) { c.base = strings.TrimSuffix(base, "/") }
}

// WithRESTLogger attaches a logger.
func WithRESTLogger(log *zap.Logger) RESTOpt {
	return func(c *RESTClient) {
		c.log = log
		c.limiter.log = log
	}
}

// WithRateLimiter swaps the admission coordinator.
func WithRateLimiter(l *RateLimiter) RESTOpt {
	return func(c *RESTClient) { c.limiter = l }
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConnsPerHost: 32,
			ForceAttemptHTTP2:   true,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
}

// Request performs one admitted exchange. route is the template key
// the rate limiter buckets on; path is the concrete request path. The
// caller owns the response and must close its body.
func (c *RESTClient) Request(ctx context.Context, method, path, route string, body []byte, reason string) (*http.Response, error) {
	if err := checkLength("audit reason", reason, maxReasonLength); err != nil {
		return nil, err
	}

	send := func(ctx context.Context) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.auth)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
		if reason != "" {
			req.Header.Set(headerAuditReason, reason)
		}
		return c.http.Do(req)
	}

	resp, err := c.limiter.Do(ctx, method, route, send)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		// Headers were already reconciled; the breach itself is the
		// caller's to see.
		c.log.Warn("rate limit breached", zap.String("route", method+" "+route))
	}
	return resp, nil
}

// do is Request plus JSON plumbing: marshals in, decodes out, drains
// and closes the body, turns >=400 into a *RESTError.
func (c *RESTClient) do(ctx context.Context, method, path, route string, in, out any, reason string) error {
	var body []byte
	if in != nil {
		var err error
		body, err = jsonCodec.Marshal(in)
		if err != nil {
			return err
		}
	}

	resp, err := c.Request(ctx, method, path, route, body, reason)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return &RESTError{Status: resp.StatusCode, Body: data}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return jsonCodec.Unmarshal(data, out)
}

// RESTError is a non-2xx response surfaced to the caller.
type RESTError struct {
	Status int
	Body   []byte
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("amaterasu: http %d: %s", e.Status, e.Body)
}
