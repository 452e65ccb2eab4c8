// Package xlog is the structured-logging façade shared by dispatch and
// dispatch/event: a thin wrapper around
// github.com/joeycumines/logiface backed by github.com/joeycumines/stumpy's
// zero-allocation JSON encoder, composed exactly as the sibling modules in
// this codebase do.
package xlog

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// defaultLogger is package-global and swapped atomically so SetLogger
// can be called concurrently with logging from worker goroutines.
var defaultLogger atomic.Pointer[logiface.Logger[*stumpy.Event]]

func init() {
	defaultLogger.Store(newDefault())
}

func newDefault() *logiface.Logger[*stumpy.Event] {
	return logiface.New[*stumpy.Event](
		stumpy.WithStumpy(),
		logiface.WithLevel[*stumpy.Event](logiface.LevelInformational),
	)
}

// Logger returns the process-wide default logger. Safe for concurrent use.
func Logger() *logiface.Logger[*stumpy.Event] {
	return defaultLogger.Load()
}

// SetLogger replaces the process-wide default logger, e.g. to redirect
// output or change the minimum level. A nil logger restores the
// built-in stumpy-backed default.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	if l == nil {
		l = newDefault()
	}
	defaultLogger.Store(l)
}

// LogPanic records a recovered task panic at Error level with a short
// stack trace, then lets the worker that recovered it continue — the
// "errors inside a user task are caught at the worker boundary and
// logged" policy every queue flavor in this module follows.
func LogPanic(recovered any) {
	Logger().Err().
		Any("recovered", recovered).
		Str("stack", string(debug.Stack())).
		Log("recovered panic in dispatched task")
}
