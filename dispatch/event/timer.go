package event

import (
	"container/heap"
	"time"
)

// TimerID identifies a scheduled timer for later cancellation.
type TimerID uint64

// timerEntry is one scheduled callback. It is the Go counterpart of the
// source's single timer concept, generalized with an optional repeat
// interval so periodic timers don't need a second data structure.
type timerEntry struct {
	id       TimerID
	when     time.Time
	interval time.Duration // zero for one-shot timers
	callback func()
	canceled bool
}

// timerHeap is a min-heap of pending timers ordered by deadline, grounded
// on the teacher's timerHeap (container/heap over a when-ordered slice).
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// timers tracks scheduled callbacks for a Manager. It is not safe for
// concurrent use; the Manager serializes access to it with its mutex,
// since AddTimer and CancelTimer may be called from any goroutine.
type timers struct {
	heap    timerHeap
	byID    map[TimerID]*timerEntry
	nextID  TimerID
}

func newTimers() *timers {
	return &timers{byID: make(map[TimerID]*timerEntry)}
}

func (t *timers) add(when time.Time, interval time.Duration, cb func()) TimerID {
	t.nextID++
	e := &timerEntry{id: t.nextID, when: when, interval: interval, callback: cb}
	t.byID[e.id] = e
	heap.Push(&t.heap, e)
	return e.id
}

// cancel marks a timer canceled. A canceled timer already popped off the
// heap for firing is not invoked; one still pending is skipped when its
// turn comes and lazily dropped rather than searched for and removed
// from the middle of the heap.
func (t *timers) cancel(id TimerID) bool {
	e, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	e.canceled = true
	return true
}

// nextDeadline reports when the earliest live timer fires, skipping (and
// discarding) any canceled entries at the top of the heap.
func (t *timers) nextDeadline() (time.Time, bool) {
	for t.heap.Len() > 0 {
		e := t.heap[0]
		if e.canceled {
			heap.Pop(&t.heap)
			continue
		}
		return e.when, true
	}
	return time.Time{}, false
}

// fireDue pops and runs (via run) every timer whose deadline is at or
// before now, re-scheduling repeating timers for their next interval.
func (t *timers) fireDue(now time.Time, run func(func())) {
	for t.heap.Len() > 0 {
		e := t.heap[0]
		if e.canceled {
			heap.Pop(&t.heap)
			continue
		}
		if e.when.After(now) {
			return
		}
		heap.Pop(&t.heap)
		delete(t.byID, e.id)
		run(e.callback)
		if e.interval > 0 && !e.canceled {
			e.when = e.when.Add(e.interval)
			e.canceled = false
			t.byID[e.id] = e
			heap.Push(&t.heap, e)
		}
	}
}
