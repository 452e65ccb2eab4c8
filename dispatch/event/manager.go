// Package event bridges OS-level readiness notification (kqueue on
// darwin, epoll on linux) into the dispatch package's cooperative
// task model, plus a software timer min-heap that needs no OS timer fd
// of its own: the poll loop simply bounds its wait by the next timer
// deadline.
//
// Manager owns a single poll loop goroutine per instance, started by
// Run. Registration methods (RegisterFD, RegisterSignal, AddTimer) are
// safe to call from any goroutine; they apply their change directly under
// the Manager's lock (fd and signal registrations go straight to the
// kernel poller), and AddTimer also interrupts a blocking wait so a new
// deadline takes effect promptly rather than after the current timeout.
package event

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tsnorri/libbio-sub001/dispatch"
)

// syscallSignal is the signal type the poller interface deals in;
// aliased so manager_kqueue.go and manager_epoll.go don't each need
// their own import of "os" just for this one type.
type syscallSignal = os.Signal

// poller is the platform-specific half of Manager: the actual kqueue or
// epoll file descriptor and the syscalls that drive it. See
// manager_kqueue.go (darwin) and manager_epoll.go (linux).
type poller interface {
	registerFD(fd int, write bool, src *Source) error
	unregisterFD(fd int, write bool) error
	registerSignal(sig syscallSignal, src *Source) error
	unregisterSignal(sig syscallSignal) error
	// wait blocks for at most timeout (a negative timeout blocks
	// indefinitely), running the callback for every fd/signal that
	// became ready, then returns. A wake() call from another goroutine
	// causes an in-progress wait to return promptly.
	wait(timeout time.Duration) error
	wake()
	close() error
}

// Manager multiplexes readiness events and software timers. Each source
// carries its own optional bound queue: a source with a bound queue has
// its task enqueued there (so a slow callback can never stall readiness
// delivery for unrelated sources); a source with no bound queue (q ==
// nil, and no Manager-level target either) has its task invoked
// directly on the poll loop goroutine that observed the event.
type Manager struct {
	target dispatch.Queue
	poller poller
	timers *timers

	mu     sync.Mutex
	closed bool
}

// New constructs a Manager. target is a convenience fallback queue used
// by sources registered with a nil per-source queue; a nil target means
// such sources are invoked directly on the poll loop goroutine instead.
func New(target dispatch.Queue) (*Manager, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Manager{
		target: target,
		poller: p,
		timers: newTimers(),
	}, nil
}

// dispatchOn returns the callback fire() should invoke for a source
// bound to q: enqueued as a Task on q if q is non-nil, falling back to
// the Manager's target queue if the source specifies none, or run
// directly on the firing goroutine if no queue applies at all.
func (m *Manager) dispatchOn(q dispatch.Queue, cb func()) func() {
	if q == nil {
		q = m.target
	}
	if q == nil {
		return cb
	}
	return func() { q.Async(dispatch.NewTask(cb)) }
}

// RegisterFD arms delivery of readiness for fd in the given direction
// (write selects writable-readiness instead of readable-readiness). If q
// is non-nil, cb is enqueued there as a Task when fired; if q is nil, it
// falls back to the Manager's target queue, and if that is also nil, cb
// runs directly on the poll loop goroutine. The returned Source can be
// used to pause/resume delivery without a full RegisterFD/UnregisterFD
// round trip.
func (m *Manager) RegisterFD(fd int, write bool, q dispatch.Queue, cb func()) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	kind := sourceFDRead
	if write {
		kind = sourceFDWrite
	}
	src := newSource(kind, fd, m.dispatchOn(q, cb))
	if err := m.poller.registerFD(fd, write, src); err != nil {
		return nil, err
	}
	return src, nil
}

// UnregisterFD disarms a previously registered fd/direction pair.
func (m *Manager) UnregisterFD(fd int, write bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.poller.unregisterFD(fd, write)
}

// RegisterSignal arms delivery of sig. cb is dispatched per q exactly
// like RegisterFD's q parameter (enqueued on q, falling back to the
// Manager's target, or run directly if neither applies); it never runs
// on Go's usual signal delivery goroutine either way, since the
// underlying poller intercepts the signal via signalfd (linux) or
// EVFILT_SIGNAL (darwin) so it never reaches a Go signal.Notify
// channel at all.
func (m *Manager) RegisterSignal(sig os.Signal, q dispatch.Queue, cb func()) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	src := newSignalSource(sig, m.dispatchOn(q, cb))
	if err := m.poller.registerSignal(sig, src); err != nil {
		return nil, err
	}
	return src, nil
}

// UnregisterSignal disarms a previously registered signal.
func (m *Manager) UnregisterSignal(sig os.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.poller.unregisterSignal(sig)
}

// AddTimer schedules cb to fire at or after when, dispatched per q
// exactly like RegisterFD's q parameter. A positive interval makes it a
// repeating timer. It returns an ID usable with CancelTimer.
func (m *Manager) AddTimer(when time.Time, interval time.Duration, q dispatch.Queue, cb func()) TimerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.timers.add(when, interval, m.dispatchOn(q, cb))
	m.poller.wake()
	return id
}

// CancelTimer cancels a previously scheduled timer. It reports whether
// the timer was found and had not already fired.
func (m *Manager) CancelTimer(id TimerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers.cancel(id)
}

// Close releases the Manager's poller resources. Run returns shortly
// after Close is called.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.poller.wake()
	return m.poller.close()
}

// Run drives the poll loop until ctx is done or Close is called,
// whichever comes first. Run is not reentrant: call it from exactly one
// goroutine.
func (m *Manager) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.poller.wake()
		case <-done:
		}
	}()

	for {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := m.nextTimeout()
		if err := m.poller.wait(timeout); err != nil {
			return err
		}
		m.runDueTimers()
	}
}

func (m *Manager) nextTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	when, ok := m.timers.nextDeadline()
	if !ok {
		return -1
	}
	d := time.Until(when)
	if d < 0 {
		d = 0
	}
	return d
}

func (m *Manager) runDueTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers.fireDue(time.Now(), func(cb func()) { cb() })
}
