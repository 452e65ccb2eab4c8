package event

import "errors"

var (
	// ErrClosed is returned by Manager methods called after Close.
	ErrClosed = errors.New("event: manager closed")
	// ErrFDAlreadyRegistered is returned when a file descriptor is
	// already registered for the same readiness direction.
	ErrFDAlreadyRegistered = errors.New("event: fd already registered")
	// ErrFDNotRegistered is returned by Unregister calls for an fd that
	// was never registered, or already unregistered.
	ErrFDNotRegistered = errors.New("event: fd not registered")
	// ErrSignalAlreadyRegistered is returned when the same signal is
	// registered twice without an intervening unregister.
	ErrSignalAlreadyRegistered = errors.New("event: signal already registered")
	// ErrSignalNotRegistered is returned by UnregisterSignal for a signal
	// that was never registered.
	ErrSignalNotRegistered = errors.New("event: signal not registered")
)
