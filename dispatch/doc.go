// Package dispatch provides a small cooperative task-dispatch runtime: a
// thread-pool-backed family of work queues (parallel, serial, and a
// caller-drained main queue), a small-buffer task value, counting groups,
// and optional write-barriers on parallel queues.
//
// The event-manager integration (fd readiness, signals, timers) lives in
// the sibling package dispatch/event; it consumes the Queue and Task types
// defined here but is otherwise independent.
package dispatch
