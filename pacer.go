package amaterasu

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sendPacer releases queued gateway frames to the transport at most
// one per sendInterval. Heartbeats go to the head of the queue so a
// backlog of normal traffic can never delay them. A burst of one with
// the token bucket full means the first frame after an idle period
// goes out immediately.
type sendPacer struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool

	wake    chan struct{}
	limiter *rate.Limiter
	write   func([]byte) error
	log     *zap.Logger
}

func newSendPacer(write func([]byte) error, log *zap.Logger) *sendPacer {
	return &sendPacer{
		wake:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(rate.Every(sendInterval), 1),
		write:   write,
		log:     log,
	}
}

// push enqueues one frame. priority inserts at the head.
func (p *sendPacer) push(frame []byte, priority bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if priority {
		p.queue = append([][]byte{frame}, p.queue...)
	} else {
		p.queue = append(p.queue, frame)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// close stops the pacer from emitting any further frame. Taking the
// queue lock here serializes shutdown against an in-progress dequeue.
func (p *sendPacer) close() {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.mu.Unlock()
}

// run drains the queue until ctx ends. It parks on wake while the
// queue is empty, so the timer is effectively disarmed when idle.
func (p *sendPacer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			pending := len(p.queue)
			p.mu.Unlock()
			if pending == 0 {
				break
			}

			if err := p.limiter.Wait(ctx); err != nil {
				return
			}

			// Re-pop after the wait: a heartbeat enqueued while we
			// slept must be the frame that goes out now.
			p.mu.Lock()
			if p.closed || len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			frame := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			if err := p.write(frame); err != nil {
				p.log.Debug("gateway write failed", zap.Error(err))
			}
		}
	}
}
