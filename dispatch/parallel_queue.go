package dispatch

import "sync/atomic"

// ParallelQueue dispatches items to a Pool with no ordering guarantee
// among items beyond FIFO *dispatch* order; multiple workers may run
// items from the same ParallelQueue concurrently. This is the Go
// counterpart of the source's concurrent dispatch queue.
//
// Barriers are an opt-in feature (WithBarriers): when enabled, Barrier
// publishes a synchronization point such that every item submitted
// before it finishes before the barrier's task runs, and every item
// submitted after it waits for the barrier's task to finish before
// running. See barrier.go for the segment-counting mechanism that
// replaces the source's shared_ptr reference-counted barrier chain.
type ParallelQueue struct {
	pool            *Pool
	items           *ring[queueItem]
	barriersEnabled bool
	current         atomic.Pointer[barrier]
}

// ParallelQueueOption configures a ParallelQueue constructed by
// NewParallelQueue.
type ParallelQueueOption func(*ParallelQueue)

// WithBarriers enables Barrier on the constructed ParallelQueue. Barriers
// are disabled by default since they add bookkeeping overhead every
// queue flavor doesn't need.
func WithBarriers() ParallelQueueOption {
	return func(pq *ParallelQueue) { pq.barriersEnabled = true }
}

// NewParallelQueue constructs a ParallelQueue backed by pool, with a
// bounded backlog of the given capacity. A nil pool uses Shared().
func NewParallelQueue(pool *Pool, capacity int, opts ...ParallelQueueOption) *ParallelQueue {
	if pool == nil {
		pool = Shared()
	}
	pq := &ParallelQueue{
		pool:  pool,
		items: newRing[queueItem](capacity),
	}
	for _, opt := range opts {
		opt(pq)
	}
	if pq.barriersEnabled {
		// Seed current with an already-finished sentinel so items
		// Async'd before the first real Barrier belong to a segment
		// that barrier can wait on (see newDoneSentinelBarrier).
		pq.current.Store(newDoneSentinelBarrier())
	}
	return pq
}

// Async submits t for concurrent execution. Blocks if the queue's
// backlog is full.
func (pq *ParallelQueue) Async(t Task) {
	var b *barrier
	if pq.barriersEnabled {
		b = pq.current.Load()
		if b != nil {
			b.retain()
		}
	}
	pq.pool.IncWaiting()
	pq.items.push(queueItem{task: t, barrier: b})
	pq.pool.notify(pq)
}

// GroupAsync submits t and ties its completion to g.
func (pq *ParallelQueue) GroupAsync(g *Group, t Task) {
	g.Enter()
	pq.Async(NewTask(func() {
		defer g.Exit()
		t.Run()
	}))
}

// Barrier publishes a barrier task. If the queue was not built
// WithBarriers, Barrier behaves exactly like Async: the caller gets no
// ordering guarantee beyond the one Async already provides.
func (pq *ParallelQueue) Barrier(t Task) {
	if !pq.barriersEnabled {
		pq.Async(t)
		return
	}
	newB := newBarrier(t)
	// prev is never nil here: NewParallelQueue seeds current with a
	// done sentinel whenever barriers are enabled, so the first real
	// Barrier call still has a predecessor segment to wait on.
	prev := pq.current.Swap(newB)
	if prev == nil {
		newB.previousHasFinished.Store(true)
	} else {
		prev.next.Store(newB)
		prev.supersede()
	}
	// The barrier's own queue item is itself a member of the barrier's
	// segment: its completion (run, below) must also be accounted for
	// before the successor can proceed.
	newB.retain()
	pq.pool.IncWaiting()
	pq.items.push(queueItem{barrier: newB, isBarrierItem: true})
	pq.pool.notify(pq)
}

// Clear discards every item not yet started. Barrier bookkeeping for
// discarded items is released without running the barrier's task, so a
// successor barrier can still make progress; a discarded barrier item
// never runs its own task.
func (pq *ParallelQueue) Clear() {
	for {
		item, ok := pq.items.tryPop()
		if !ok {
			return
		}
		pq.pool.DecWaiting()
		if item.barrier != nil {
			item.barrier.release()
		}
	}
}

// runNext implements runnable for Pool workers.
func (pq *ParallelQueue) runNext() bool {
	item, ok := pq.items.tryPop()
	if !ok {
		return false
	}
	pq.pool.DecWaiting()
	if item.barrier != nil {
		item.barrier.run()
	}
	if !item.isBarrierItem {
		runTaskRecover(item.task)
	}
	if item.barrier != nil {
		item.barrier.release()
	}
	return true
}
