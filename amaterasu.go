// Package amaterasu is a Discord bot client: one live gateway session
// under a heartbeat/resume protocol, and a REST surface driven through
// per-route rate-limit buckets discovered from response headers.
package amaterasu

import (
	"runtime"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Client bundles a gateway session with the REST client that shares
// its token.
type Client struct {
	Session *Session
	REST    *RESTClient
}

// New builds a Client. Options apply to both halves where they
// overlap (token, logger).
func New(token string, opts ...ClientOpt) *Client {
	cfg := clientConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	sessionOpts := append([]SessionOpt{WithSessionLogger(cfg.log)}, cfg.sessionOpts...)
	restOpts := append([]RESTOpt{WithRESTLogger(cfg.log)}, cfg.restOpts...)

	return &Client{
		Session: NewSession(token, sessionOpts...),
		REST:    NewRESTClient(token, restOpts...),
	}
}

type clientConfig struct {
	log         *zap.Logger
	sessionOpts []SessionOpt
	restOpts    []RESTOpt
}

// ClientOpt customizes a Client.
type ClientOpt func(*clientConfig)

// WithLogger attaches a logger to both the session and the REST client.
func WithLogger(log *zap.Logger) ClientOpt {
	return func(c *clientConfig) { c.log = log }
}

// WithSessionOpts forwards options to the gateway session.
func WithSessionOpts(opts ...SessionOpt) ClientOpt {
	return func(c *clientConfig) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// WithRESTOpts forwards options to the REST client.
func WithRESTOpts(opts ...RESTOpt) ClientOpt {
	return func(c *clientConfig) { c.restOpts = append(c.restOpts, opts...) }
}

func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	default:
		return runtime.GOOS
	}
}
