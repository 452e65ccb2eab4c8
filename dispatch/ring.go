package dispatch

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// ring is a bounded, blocking, multi-producer multi-consumer queue.
//
// It is a Dekker-style ticket queue: each slot carries a sequence number
// ("turn") instead of a lock. Push with ticket t spins/waits until the
// slot at t mod capacity carries turn t, writes the payload, then
// advances the slot's turn to t+1; Pop is symmetric, waiting for turn
// t+1 and leaving the slot at t+capacity so the next full lap sees t
// again. Tie-breaking is strict FIFO by ticket, matching the CAS-based
// sequence ring hayabusa-cloud-lfq builds on the same atomix/spin
// primitives, generalized here to block instead of returning
// ErrWouldBlock: a full/empty ring parks producers/consumers on a
// condition variable rather than surfacing backpressure to the caller.
type ring[T any] struct {
	tail     atomix.Uint64
	_        [64]byte // keeps tail and head on separate cache lines
	head     atomix.Uint64
	_        [64]byte
	mask     uint64
	capacity uint64
	slots    []ringSlot[T]

	mu   sync.Mutex
	cond sync.Cond
}

type ringSlot[T any] struct {
	turn atomix.Uint64
	val  T
}

// newRing creates a ring whose capacity is rounded up to the next power
// of two (minimum 2).
func newRing[T any](capacity int) *ring[T] {
	return newRingState[T](capacity, false)
}

// newRingStartFromReading mirrors the source's start_from_reading
// construction: the first operation performed against the ring must be a
// pop, as used by pools of pre-populated reusable buffers.
func newRingStartFromReading[T any](capacity int, fill func(i int) T) *ring[T] {
	r := newRingState[T](capacity, true)
	for i := range r.slots {
		r.slots[i].val = fill(i)
	}
	return r
}

func newRingState[T any](capacity int, startFromReading bool) *ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	n := uint64(roundUpPow2(capacity))
	r := &ring[T]{
		mask:     n - 1,
		capacity: n,
		slots:    make([]ringSlot[T], n),
	}
	r.cond.L = &r.mu
	for i := uint64(0); i < n; i++ {
		if startFromReading {
			r.slots[i].turn.StoreRelaxed(i + 1)
		} else {
			r.slots[i].turn.StoreRelaxed(i)
		}
	}
	if startFromReading {
		r.tail.StoreRelaxed(n)
	}
	return r
}

func roundUpPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's physical capacity (rounded up to a power of two).
func (r *ring[T]) Cap() int { return int(r.capacity) }

// approxLen reports a racy snapshot of the number of queued elements. It
// is only ever used as a liveness hint (deciding whether to re-arm a
// drain trampoline), never for a correctness decision that requires an
// exact count.
func (r *ring[T]) approxLen() int {
	return int(int64(r.tail.LoadAcquire()) - int64(r.head.LoadAcquire()))
}

// push blocks until a slot is available, then enqueues v.
func (r *ring[T]) push(v T) {
	sw := spin.Wait{}
	for {
		tail := r.tail.LoadAcquire()
		slot := &r.slots[tail&r.mask]
		turn := slot.turn.LoadAcquire()
		switch {
		case turn == tail:
			if r.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.val = v
				slot.turn.StoreRelease(tail + 1)
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
				return
			}
		case int64(turn)-int64(tail) < 0:
			// Ring full: park until a consumer frees this slot.
			r.waitTurn(slot, tail)
			continue
		}
		sw.Once()
	}
}

// pop blocks until a value is available, then dequeues it.
func (r *ring[T]) pop() T {
	sw := spin.Wait{}
	for {
		head := r.head.LoadAcquire()
		slot := &r.slots[head&r.mask]
		turn := slot.turn.LoadAcquire()
		switch {
		case turn == head+1:
			if r.head.CompareAndSwapAcqRel(head, head+1) {
				val := slot.val
				var zero T
				slot.val = zero
				slot.turn.StoreRelease(head + r.capacity)
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
				return val
			}
		case int64(turn)-int64(head+1) < 0:
			// Ring empty: park until a producer publishes this slot.
			r.waitTurn(slot, head+1)
			continue
		}
		sw.Once()
	}
}

// tryPop attempts a single non-blocking dequeue.
func (r *ring[T]) tryPop() (T, bool) {
	head := r.head.LoadAcquire()
	slot := &r.slots[head&r.mask]
	turn := slot.turn.LoadAcquire()
	if turn == head+1 && r.head.CompareAndSwapAcqRel(head, head+1) {
		val := slot.val
		var zero T
		slot.val = zero
		slot.turn.StoreRelease(head + r.capacity)
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
		return val, true
	}
	var zero T
	return zero, false
}

// waitTurn parks the caller until slot's turn reaches want, standing in
// for the source's futex-style atomic wait on the cell's turn. The
// condition is rechecked under the mutex before and after each Wait, so
// a Broadcast that races with the park is never missed: the writer's
// StoreRelease happens-before the Broadcast's Lock, which happens-before
// any observer's own Lock, so a fresh LoadAcquire under r.mu always sees
// a turn update that completed before the corresponding wakeup.
func (r *ring[T]) waitTurn(slot *ringSlot[T], want uint64) {
	r.mu.Lock()
	for slot.turn.LoadAcquire() != want {
		r.cond.Wait()
	}
	r.mu.Unlock()
}
