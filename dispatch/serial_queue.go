package dispatch

import "sync/atomic"

// SerialQueue runs its items one at a time, in submission order, never
// concurrently with itself — the Go counterpart of the source's serial
// dispatch queue, typically used to protect state that isn't safe for
// concurrent access without its own locking.
//
// At most one pool worker ever drains a given SerialQueue at a time: a
// scheduled flag, flipped with a single compare-and-swap, guarantees the
// queue is represented by at most one runnable entry in the pool's
// pending list. This is the same "CAS-guarded trampoline" idiom used by
// single-threaded microtask queues; see runNext for the detailed
// happens-before argument for why it never misses a wakeup.
type SerialQueue struct {
	pool      *Pool
	items     *ring[queueItem]
	scheduled atomic.Bool
}

// NewSerialQueue constructs a SerialQueue backed by pool, with a bounded
// backlog of the given capacity. A nil pool uses Shared().
func NewSerialQueue(pool *Pool, capacity int) *SerialQueue {
	if pool == nil {
		pool = Shared()
	}
	return &SerialQueue{
		pool:  pool,
		items: newRing[queueItem](capacity),
	}
}

// Async submits t, to run after every item already queued.
func (sq *SerialQueue) Async(t Task) {
	sq.pool.IncWaiting()
	sq.items.push(queueItem{task: t})
	sq.schedule()
}

// GroupAsync submits t and ties its completion to g.
func (sq *SerialQueue) GroupAsync(g *Group, t Task) {
	g.Enter()
	sq.Async(NewTask(func() {
		defer g.Exit()
		t.Run()
	}))
}

// Barrier is equivalent to Async on a SerialQueue: items are already
// fully serialized, so there is nothing left for a barrier to add.
func (sq *SerialQueue) Barrier(t Task) { sq.Async(t) }

// Clear discards every item not yet started.
func (sq *SerialQueue) Clear() {
	for {
		_, ok := sq.items.tryPop()
		if !ok {
			return
		}
		sq.pool.DecWaiting()
	}
}

func (sq *SerialQueue) schedule() {
	if sq.scheduled.CompareAndSwap(false, true) {
		sq.pool.notify(sq)
	}
}

// runNext implements runnable for Pool workers. Only one goroutine at a
// time ever executes this method for a given SerialQueue, guaranteed by
// the scheduled flag: a worker holds the "scheduled" token for the
// entire duration of its drain loop (Pool.worker's `for r.runNext() {}`),
// and schedule only hands the token to a new worker via pool.notify when
// it wins the false->true CAS.
func (sq *SerialQueue) runNext() bool {
	item, ok := sq.items.tryPop()
	if !ok {
		sq.scheduled.Store(false)
		// An Async racing with the two lines above may have pushed its
		// item before we cleared scheduled but found the CAS already
		// held, so it did not re-notify the pool. tail is only ever
		// advanced by push's successful CAS before scheduled is
		// cleared, so a fresh load here is guaranteed to observe any
		// such push; if it did happen, we must re-arm ourselves.
		if sq.items.approxLen() > 0 && sq.scheduled.CompareAndSwap(false, true) {
			sq.pool.notify(sq)
		}
		return false
	}
	sq.pool.DecWaiting()
	runTaskRecover(item.task)
	return true
}
