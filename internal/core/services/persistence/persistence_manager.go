package persistence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcalzada-xor/mids/internal/telemetry"
)

type pendingWrite struct {
	kind     string
	fn       func(ctx context.Context) error
	attempts int
}

// PersistenceManager applies store writes in the background, in order, retrying
// failed writes with exponential backoff. While a write is failing the manager
// reports itself degraded and keeps accepting new writes in memory.
type PersistenceManager struct {
	mu         sync.Mutex
	drainMu    sync.Mutex
	queue      []pendingWrite
	maxPending int
	wake       chan struct{}

	degraded atomic.Bool
	dropped  atomic.Int64

	interval     time.Duration
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	writeTimeout time.Duration
}

// NewPersistenceManager creates a manager holding at most maxPending writes.
func NewPersistenceManager(maxPending int) *PersistenceManager {
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &PersistenceManager{
		maxPending:   maxPending,
		wake:         make(chan struct{}, 1),
		interval:     5 * time.Second,
		baseBackoff:  200 * time.Millisecond,
		maxBackoff:   30 * time.Second,
		writeTimeout: 5 * time.Second,
	}
}

// SetBackoff overrides the retry backoff bounds.
func (p *PersistenceManager) SetBackoff(base, max time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseBackoff = base
	p.maxBackoff = max
}

// Enqueue schedules a write. When the queue is full the write is dropped and counted.
func (p *PersistenceManager) Enqueue(kind string, write func(ctx context.Context) error) {
	p.mu.Lock()
	if len(p.queue) >= p.maxPending {
		p.mu.Unlock()
		p.dropped.Add(1)
		telemetry.StoreWriteFailures.WithLabelValues(kind).Inc()
		slog.Error("persistence queue full, dropping write", "kind", kind, "pending", p.maxPending)
		return
	}
	p.queue = append(p.queue, pendingWrite{kind: kind, fn: write})
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Degraded reports whether the head write is currently failing.
func (p *PersistenceManager) Degraded() bool {
	return p.degraded.Load()
}

// Pending returns the number of writes not yet applied.
func (p *PersistenceManager) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped returns the number of writes discarded because the queue was full.
func (p *PersistenceManager) Dropped() int64 {
	return p.dropped.Load()
}

// Start begins the persistence loop. On cancellation it makes one last attempt
// to drain the queue.
func (p *PersistenceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
				if err := p.drain(final, false); err != nil {
					slog.Warn("persistence queue not fully drained on shutdown", "pending", p.Pending(), "error", err)
				}
				cancel()
				return
			case <-p.wake:
			case <-ticker.C:
			}
			if err := p.drain(ctx, true); err != nil && ctx.Err() == nil {
				slog.Error("persistence drain stopped", "error", err)
			}
		}
	}()
}

// Flush applies queued writes once each, without backoff, and returns the first error.
func (p *PersistenceManager) Flush(ctx context.Context) error {
	return p.drain(ctx, false)
}

// drain applies writes in FIFO order. With retry set, a failing head write is
// retried with backoff until it succeeds or ctx ends.
func (p *PersistenceManager) drain(ctx context.Context, retry bool) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			p.degraded.Store(false)
			return nil
		}
		head := p.queue[0]
		base, max := p.baseBackoff, p.maxBackoff
		p.mu.Unlock()

		err := p.apply(ctx, head)
		if err == nil {
			p.pop()
			continue
		}

		p.degraded.Store(true)
		telemetry.StoreWriteFailures.WithLabelValues(head.kind).Inc()
		attempts := p.bumpAttempts()
		slog.Warn("store write failed, durability degraded", "kind", head.kind, "attempt", attempts, "error", err)

		if !retry {
			return err
		}
		timer := time.NewTimer(backoff(base, max, attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *PersistenceManager) apply(ctx context.Context, w pendingWrite) error {
	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return w.fn(wctx)
}

func (p *PersistenceManager) pop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) > 0 {
		p.queue = p.queue[1:]
	}
}

func (p *PersistenceManager) bumpAttempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return 0
	}
	p.queue[0].attempts++
	return p.queue[0].attempts
}

// backoff doubles base per attempt, capped at max.
func backoff(base, max time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
