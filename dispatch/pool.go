package dispatch

import (
	"runtime"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
)

// runnable is anything the pool can hand a worker goroutine to drain.
// ParallelQueue and SerialQueue implement it: runNext executes at most one
// pending item and reports whether it ran one, so a worker can keep
// calling it to drain a busy queue without round-tripping through the
// pool's pending list for every single item.
type runnable interface {
	runNext() (more bool)
}

// Pool is an elastic set of worker goroutines shared by any number of
// queues. Workers are spawned on demand up to maxWorkers and retired
// after sitting idle past idleTimeout, the Go equivalent of the source's
// thread pool that grows and shrinks around bursty load rather than
// pinning a fixed number of OS threads for the process lifetime.
//
// The pool's own bookkeeping uses exactly one mutex and one condition
// variable; every wait (for work, for idle-timeout, for shutdown) is a
// recheck-the-predicate-under-lock loop so spurious wakeups are harmless.
type Pool struct {
	maxWorkers  int
	idleTimeout time.Duration

	mu      sync.Mutex
	cond    sync.Cond
	condSet sync.Once
	pending []runnable
	workers int
	idle    int
	closed  bool

	waiting atomix.Int64
}

// PoolOption configures a Pool constructed by NewPool.
type PoolOption func(*Pool)

// WithMaxWorkers bounds the number of concurrently running worker
// goroutines. The default is runtime.GOMAXPROCS(0).
func WithMaxWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// WithIdleTimeout sets how long a worker goroutine waits for new work
// before retiring. The default is 15 seconds. A non-positive timeout
// disables retirement: workers, once spawned, live for the pool's lifetime.
func WithIdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.idleTimeout = d }
}

// NewPool constructs a Pool. Worker goroutines are spawned lazily as
// work arrives, never eagerly at construction time.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{maxWorkers: defaultMaxWorkers(), idleTimeout: 15 * time.Second}
	p.condSet.Do(func() { p.cond.L = &p.mu })
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var sharedPool = sync.OnceValue(func() *Pool { return NewPool() })

// Shared returns the process-wide default Pool, created lazily on first
// use. Queues constructed without an explicit Pool use this one.
func Shared() *Pool { return sharedPool() }

// IncWaiting and DecWaiting track the number of items that have been
// submitted to some queue backed by this pool but have not yet started
// running, an observability counter the source exposes for diagnosing
// backlog growth.
func (p *Pool) IncWaiting() { p.waiting.AddAcqRel(1) }
func (p *Pool) DecWaiting() { p.waiting.AddAcqRel(-1) }

// Waiting reports the current value of that counter.
func (p *Pool) Waiting() int64 { return p.waiting.LoadAcquire() }

// notify registers r as having work available, spawning a new worker if
// none are idle and the pool has not reached maxWorkers.
func (p *Pool) notify(r runnable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = append(p.pending, r)
	switch {
	case p.idle > 0:
		p.cond.Signal()
	case p.workers < p.maxWorkers:
		p.workers++
		go p.worker()
	}
}

// Close stops accepting new work and blocks until every worker goroutine
// has observed the close and exited. Queues must not be used after Close
// returns.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	for p.workers > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.idle++
			timedOut := p.waitForWorkLocked()
			p.idle--
			if timedOut {
				p.workers--
				p.cond.Broadcast()
				p.mu.Unlock()
				return
			}
		}
		if len(p.pending) == 0 {
			// closed, nothing left: retire.
			p.workers--
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		r := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		for r.runNext() {
		}
	}
}

// waitForWorkLocked waits for either new pending work, pool closure, or
// (if idleTimeout is positive) the idle timeout to expire. Must be called
// with p.mu held; it re-acquires the lock before returning.
func (p *Pool) waitForWorkLocked() (timedOut bool) {
	if p.idleTimeout <= 0 {
		p.cond.Wait()
		return false
	}
	expired := false
	timer := time.AfterFunc(p.idleTimeout, func() {
		p.mu.Lock()
		expired = true
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()
	for len(p.pending) == 0 && !p.closed && !expired {
		p.cond.Wait()
	}
	return expired && len(p.pending) == 0 && !p.closed
}

func defaultMaxWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
