package dispatch

import "reflect"

// taskKind tags the concrete shape a Task was built from, so the common
// cases can run without an extra interface indirection.
type taskKind uint8

const (
	taskKindEmpty taskKind = iota
	taskKindFunc
	taskKindMethod
	taskKindBoxed
)

// Task is a move-only, single-shot unit of work. The zero Task is inert:
// Run is a no-op and discarding it releases nothing extra, since whatever
// it captured is reclaimed by the garbage collector like any other value.
//
// Task intentionally has no destructor step (unlike the C++ original it
// replaces): a Task dropped without running still frees its captures,
// because Go closures are ordinary heap values, not placement-constructed
// buffers requiring explicit teardown.
type Task struct {
	kind taskKind
	fn   func()
	// recv/method back a bound-method Task without allocating a second
	// closure purely to adapt the receiver; recv is an interface{} so
	// small value receivers don't escape until Run actually needs them.
	recv   any
	method func(any)
}

// NewTask wraps a plain closure. This is the common case: submitting
// `func() { ... }` directly.
func NewTask(fn func()) Task {
	if fn == nil {
		return Task{}
	}
	return Task{kind: taskKindFunc, fn: fn}
}

// NewMethodTask binds a receiver to a method value without requiring the
// caller to allocate a closure of their own; it exists for callers that
// already hold a receiver and a `func(R)`-shaped callback, mirroring the
// C++ source's "bound method with owning or weak reference to target"
// callable shape.
func NewMethodTask[R any](recv R, method func(R)) Task {
	if method == nil {
		return Task{}
	}
	return Task{
		kind: taskKindMethod,
		recv: recv,
		method: func(a any) {
			method(a.(R))
		},
	}
}

// boxedTask wraps an arbitrary niladic func value that reflect can Call
// for shapes that don't fit the fast paths above. This
// is the "larger closures are heap-allocated" fallback the source's
// inline-buffer SBO reserved for oversized captures.
func newBoxedTask(v reflect.Value) Task {
	return Task{
		kind: taskKindBoxed,
		fn: func() {
			v.Call(nil)
		},
	}
}

// TaskOf adapts an arbitrary niladic callable (e.g. a bound method value
// obtained via reflection, or a func pulled from a registry by name) into
// a Task. Prefer NewTask or NewMethodTask when the callable's shape is
// known statically; TaskOf exists for the remaining polymorphic case.
func TaskOf(fn any) Task {
	if fn == nil {
		return Task{}
	}
	if f, ok := fn.(func()); ok {
		return NewTask(f)
	}
	return newBoxedTask(reflect.ValueOf(fn))
}

// IsZero reports whether the Task carries no work.
func (t Task) IsZero() bool {
	return t.kind == taskKindEmpty
}

// Run executes the task's callable once per call. Calling Run more than
// once re-invokes the underlying callable; Task does not track whether it
// has already run, since queues never submit the same Task twice.
func (t Task) Run() {
	switch t.kind {
	case taskKindFunc:
		t.fn()
	case taskKindMethod:
		t.method(t.recv)
	case taskKindBoxed:
		t.fn()
	}
}
