package amaterasu

import (
	"context"
	"net/http"
	"time"

	"github.com/sasha-s/go-csync"
)

// bucket is the budget for one route group. It moves through three
// states, all transitions made under mu:
//
//	expired: reset has passed and no probe is out. The first caller to
//	         arrive installs firstRequest and becomes the prober.
//	probing: firstRequest is set. Everyone else waits on it.
//	active:  reset is in the future; callers claim remaining slots or
//	         sleep until reset.
//
// Once isDuplicate is set the bucket is dead: it never takes another
// header update and admissions must re-resolve through the registry.
type bucket struct {
	mu csync.Mutex

	key string

	limit     int
	remaining int
	reset     time.Time

	firstRequest *probe
	isDuplicate  bool
}

func (b *bucket) active(now time.Time) bool {
	return b.reset.After(now)
}

// probe is the shared handle to a bucket's inaugural request. Any
// number of waiters may block on it; the completion signal is a
// one-shot channel close, so no waiter steals the wakeup from another.
type probe struct {
	done chan struct{}

	resp *http.Response
	err  error
}

func newProbe() *probe {
	return &probe{done: make(chan struct{})}
}

// finish publishes the probe outcome and wakes every waiter. Must be
// called exactly once.
func (p *probe) finish(resp *http.Response, err error) {
	p.resp = resp
	p.err = err
	close(p.done)
}

func (p *probe) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
