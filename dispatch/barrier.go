package dispatch

import (
	"sync"
	"sync/atomic"
)

// barrierState tracks a barrier's own task through its one-shot
// lifecycle. At most one goroutine ever transitions a barrier from
// NotExecuted to Executing; Done is terminal.
type barrierState int32

const (
	barrierNotExecuted barrierState = iota
	barrierExecuting
	barrierDone
)

// barrier is a node in a singly linked list discovered by atomic pointer
// exchange on a ParallelQueue's current-barrier field. It is the Go
// re-architecture of the source's shared-pointer barrier chain (see
// DESIGN.md's barrier.go entry): instead of a C++
// shared_ptr's destructor propagating "previous has finished" to the
// successor when the last reference is dropped, this barrier tracks its
// own segment explicitly with a pending counter plus a superseded flag.
// A barrier's segment is itself (as a queued item) plus every regular
// item Async'd while it was the queue's current barrier; the segment is
// "finished" exactly when it has been superseded by a later barrier and
// every item in it has completed, which is the moment GC can no longer
// tell us about on its own, so it is modeled as an explicit event here.
type barrier struct {
	task Task

	state               atomic.Int32 // barrierState
	previousHasFinished atomic.Bool
	next                atomic.Pointer[barrier]

	pending    atomic.Int64 // in-flight items referencing this barrier's segment
	superseded atomic.Bool
	fired      atomic.Bool // guards fireSuccessor against running twice

	mu       sync.Mutex
	cond     sync.Cond
	condOnce sync.Once
}

func newBarrier(task Task) *barrier {
	b := &barrier{task: task}
	b.initCond()
	return b
}

// newDoneSentinelBarrier returns a barrier that is never queued and never
// run: it exists only so a freshly constructed ParallelQueue has a
// non-nil current barrier for items Async'd before the first real
// Barrier call to retain. Those items form the sentinel's segment; once
// the first real Barrier supersedes it and the segment drains, the
// sentinel fires its successor exactly like any other barrier, so the
// first real barrier correctly waits for every item submitted ahead of
// it. This replaces the source's default-constructed, already-satisfied
// shared_ptr<barrier> used to seed m_current_barrier.
func newDoneSentinelBarrier() *barrier {
	b := newBarrier(Task{})
	b.state.Store(int32(barrierDone))
	b.previousHasFinished.Store(true)
	return b
}

func (b *barrier) initCond() {
	b.condOnce.Do(func() { b.cond.L = &b.mu })
}

// retain associates one more queue item with this barrier's segment.
func (b *barrier) retain() { b.pending.Add(1) }

// release marks one item in this barrier's segment as complete. Once the
// segment is both superseded and empty, the successor (if any) is told
// its predecessor has finished.
func (b *barrier) release() {
	if b.pending.Add(-1) == 0 && b.superseded.Load() {
		b.fireSuccessor()
	}
}

// supersede marks this barrier as no longer the queue's current barrier
// (a later barrier has been published). Combined with an empty segment,
// this is what allows the successor to proceed.
func (b *barrier) supersede() {
	b.superseded.Store(true)
	if b.pending.Load() == 0 {
		b.fireSuccessor()
	}
}

func (b *barrier) fireSuccessor() {
	if !b.fired.CompareAndSwap(false, true) {
		return
	}
	if succ := b.next.Load(); succ != nil {
		succ.markPredecessorFinished()
	}
}

func (b *barrier) markPredecessorFinished() {
	b.initCond()
	b.previousHasFinished.Store(true)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// run executes the barrier's task exactly once, regardless of how many
// goroutines call run() concurrently (every item in the barrier's own
// segment, plus the barrier's own queue item, calls it before running
// their own task). The winner of the NotExecuted->Executing race waits
// for previousHasFinished, runs the task, publishes Done, and wakes
// everyone else.
func (b *barrier) run() {
	b.initCond()
	for {
		switch barrierState(b.state.Load()) {
		case barrierNotExecuted:
			if b.state.CompareAndSwap(int32(barrierNotExecuted), int32(barrierExecuting)) {
				b.waitPredecessor()
				b.task.Run()
				b.state.Store(int32(barrierDone))
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
				return
			}
		case barrierExecuting:
			b.mu.Lock()
			for barrierState(b.state.Load()) == barrierExecuting {
				b.cond.Wait()
			}
			b.mu.Unlock()
			return
		case barrierDone:
			return
		}
	}
}

func (b *barrier) waitPredecessor() {
	if b.previousHasFinished.Load() {
		return
	}
	b.mu.Lock()
	for !b.previousHasFinished.Load() {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
