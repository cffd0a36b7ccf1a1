package amaterasu

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter admits REST requests against their per-route buckets and
// folds the rate-limit headers of every response back into the bucket
// state. It guarantees a fresh route sends exactly one probe request
// before anyone else is let through, and that reordered responses can
// never make a bucket more permissive than the server said it is.
type RateLimiter struct {
	// Lock order is fixed: routesMu, then idsMu, then any bucket mu.
	routesMu sync.Mutex
	routes   map[string]*bucket // (method + route template) -> bucket

	idsMu sync.Mutex
	ids   map[string]*bucket // server bucket id -> bucket

	clock Clock
	log   *zap.Logger
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(opts ...RateLimiterOpt) *RateLimiter {
	l := &RateLimiter{
		routes: map[string]*bucket{},
		ids:    map[string]*bucket{},
		clock:  systemClock{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RateLimiterOpt customizes a RateLimiter.
type RateLimiterOpt func(*RateLimiter)

// WithRateLimiterClock swaps the time source, mainly for tests.
func WithRateLimiterClock(c Clock) RateLimiterOpt {
	return func(l *RateLimiter) { l.clock = c }
}

// WithRateLimiterLogger attaches a logger.
func WithRateLimiterLogger(log *zap.Logger) RateLimiterOpt {
	return func(l *RateLimiter) { l.log = log }
}

func (l *RateLimiter) bucketByRoute(key string) *bucket {
	l.routesMu.Lock()
	defer l.routesMu.Unlock()
	b, ok := l.routes[key]
	if !ok {
		b = &bucket{key: key}
		l.routes[key] = b
	}
	return b
}

// Do admits one request for (method, route), runs send, reconciles the
// response headers, and returns the response. route is the route
// template: major path parameters kept, minor ones elided, so it is a
// stable key across resources that share a budget.
func (l *RateLimiter) Do(ctx context.Context, method, route string, send func(context.Context) (*http.Response, error)) (*http.Response, error) {
	key := method + " " + route

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := l.bucketByRoute(key)
		if err := b.mu.CLock(ctx); err != nil {
			return nil, err
		}

		if b.isDuplicate {
			// Superseded while we were resolving; the registry
			// already points somewhere else.
			b.mu.Unlock()
			continue
		}

		now := l.clock.Now()
		switch {
		case b.active(now):
			if b.remaining > 0 {
				b.remaining--
				b.mu.Unlock()
				resp, err := send(ctx)
				if err != nil {
					return nil, err
				}
				l.reconcile(b, key, resp, nil)
				return resp, nil
			}
			until := b.reset
			b.mu.Unlock()
			l.log.Debug("rate limit window exhausted",
				zap.String("route", key),
				zap.Duration("wait", until.Sub(now)))
			// A cancelled sleep falls through to the top of the
			// loop, which returns the context's error.
			_ = l.clock.Sleep(ctx, until.Sub(now))

		case b.firstRequest == nil:
			// Expired -> probing. We are the inaugural sender; the
			// probe handle serializes everyone behind us.
			p := newProbe()
			b.firstRequest = p
			b.mu.Unlock()

			resp, err := send(ctx)
			if err != nil {
				b.mu.Lock()
				b.firstRequest = nil
				b.mu.Unlock()
				p.finish(nil, err)
				return nil, err
			}
			l.reconcile(b, key, resp, p)
			return resp, nil

		default:
			p := b.firstRequest
			b.mu.Unlock()
			_ = p.wait(ctx)
		}
	}
}

// reconcile applies a response's rate-limit headers. If the server
// revealed that this route shares a bucket id with another route, the
// route index is repointed at the canonical bucket, this one is marked
// duplicate, and the header update lands on the canonical bucket.
func (l *RateLimiter) reconcile(b *bucket, key string, resp *http.Response, p *probe) {
	effective := b
	if id := resp.Header.Get(headerBucket); id != "" {
		effective = l.remap(key, id, b)
	}

	// Clear the probe slot on the original bucket regardless of where
	// the headers land. Waiters are woken only after the update below
	// settles, so they re-admit against the final state.
	if p != nil {
		b.mu.Lock()
		b.firstRequest = nil
		b.mu.Unlock()
		defer p.finish(resp, nil)
	}

	now := l.clock.Now()
	effective.mu.Lock()
	defer effective.mu.Unlock()
	if effective.isDuplicate {
		return
	}

	if v := resp.Header.Get(headerLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			effective.limit = n
		}
	}
	if v := resp.Header.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			// While the window is live, headers may only lower the
			// budget; a reordered earlier response must not re-raise it.
			if !effective.active(now) || n < effective.remaining {
				effective.remaining = n
			}
		}
	}
	if v := resp.Header.Get(headerReset); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			at := time.Unix(0, int64(f*float64(time.Second)))
			// reset only moves forward; stale responses cannot roll
			// the window back.
			if at.After(effective.reset) {
				effective.reset = at
			}
		}
	}
}

// remap records the server-assigned bucket id. Returns the bucket all
// further updates for this route should land on.
func (l *RateLimiter) remap(key, id string, b *bucket) *bucket {
	l.routesMu.Lock()
	defer l.routesMu.Unlock()
	l.idsMu.Lock()
	defer l.idsMu.Unlock()

	canonical, ok := l.ids[id]
	if !ok {
		l.ids[id] = b
		return b
	}
	if canonical == b {
		return b
	}

	// The server collapsed this route onto a bucket discovered via
	// another route. Repoint the route index and retire ours.
	l.routes[key] = canonical
	b.mu.Lock()
	b.isDuplicate = true
	b.mu.Unlock()
	l.log.Debug("rate limit bucket collapsed",
		zap.String("route", key),
		zap.String("bucket", id))
	return canonical
}
