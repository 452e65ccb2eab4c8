package dispatch

// Ring is the exported form of the package's bounded MPMC ring, usable
// by other packages in this module (bgzf's output-buffer recycling pool
// is built directly on it) wherever a bounded, blocking producer/
// consumer handoff is needed without pulling in a full Queue. It is the
// same type the source library's bounded_mpmc_queue plays for
// streaming_reader's task and buffer queues: one structure serving both
// "pool of reusable values" and "bounded work queue" roles depending on
// how it's seeded.
type Ring[T any] struct {
	r *ring[T]
}

// NewRing creates a Ring whose capacity is rounded up to the next power
// of two (minimum 2). It starts empty: the first operation must be a
// Push.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{r: newRing[T](capacity)}
}

// NewRingStartFromReading creates a Ring pre-populated by fill, one
// value per slot, so the first operation may be a Pop — used to seed a
// pool of pre-allocated reusable values (e.g. decompression output
// buffers) rather than an initially-empty work queue.
func NewRingStartFromReading[T any](capacity int, fill func(i int) T) *Ring[T] {
	return &Ring[T]{r: newRingStartFromReading[T](capacity, fill)}
}

// Cap returns the ring's physical capacity (rounded up to a power of two).
func (r *Ring[T]) Cap() int { return r.r.Cap() }

// Push blocks until a slot is available, then enqueues v.
func (r *Ring[T]) Push(v T) { r.r.push(v) }

// Pop blocks until a value is available, then dequeues it.
func (r *Ring[T]) Pop() T { return r.r.pop() }

// TryPop attempts a single non-blocking dequeue.
func (r *Ring[T]) TryPop() (T, bool) { return r.r.tryPop() }
