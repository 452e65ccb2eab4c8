//go:build darwin

package event

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// wakeIdent is a fabricated identifier for the EVFILT_USER event used to
// interrupt a blocked kevent call from another goroutine. It is chosen
// far outside the fd namespace so it can never collide with a real file
// descriptor registered via registerFD.
const wakeIdent = ^uint64(0)

// kqueuePoller is the darwin poller implementation, grounded on the
// teacher's FastPoller (poller_darwin.go): one kqueue fd, EVFILT_READ and
// EVFILT_WRITE for fd readiness, EVFILT_SIGNAL for signals, and
// EVFILT_USER for cross-goroutine wake-up instead of a self-pipe.
type kqueuePoller struct {
	kq int

	mu       sync.Mutex
	readFDs  map[int]*Source
	writeFDs map[int]*Source
	sigCBs   map[unix.Signal]*Source

	eventBuf [128]unix.Kevent_t
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("event: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	p := &kqueuePoller{
		kq:       kq,
		readFDs:  make(map[int]*Source),
		writeFDs: make(map[int]*Source),
		sigCBs:   make(map[unix.Signal]*Source),
	}

	wake := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{wake}, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, fmt.Errorf("event: register wake event: %w", err)
	}
	return p, nil
}

func (p *kqueuePoller) registerFD(fd int, write bool, src *Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.readFDs
	filter := int16(unix.EVFILT_READ)
	if write {
		m = p.writeFDs
		filter = unix.EVFILT_WRITE
	}
	if _, ok := m[fd]; ok {
		return ErrFDAlreadyRegistered
	}

	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	m[fd] = src
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int, write bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.readFDs
	filter := int16(unix.EVFILT_READ)
	if write {
		m = p.writeFDs
		filter = unix.EVFILT_WRITE
	}
	if _, ok := m[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(m, fd)

	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) registerSignal(sig syscallSignal, src *Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := toUnixSignal(sig)
	if !ok {
		return fmt.Errorf("event: unsupported signal %v", sig)
	}
	if _, ok := p.sigCBs[s]; ok {
		return ErrSignalAlreadyRegistered
	}

	// Ignoring the signal in the libc sense is required so the default
	// disposition (often terminate) doesn't race the kqueue delivery.
	signal.Ignore(os.Signal(s))

	ev := unix.Kevent_t{
		Ident:  uint64(s),
		Filter: unix.EVFILT_SIGNAL,
		Flags:  unix.EV_ADD,
	}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	p.sigCBs[s] = src
	return nil
}

func (p *kqueuePoller) unregisterSignal(sig syscallSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := toUnixSignal(sig)
	if !ok {
		return ErrSignalNotRegistered
	}
	if _, ok := p.sigCBs[s]; !ok {
		return ErrSignalNotRegistered
	}
	delete(p.sigCBs, s)

	signal.Reset(os.Signal(s))

	ev := unix.Kevent_t{
		Ident:  uint64(s),
		Filter: unix.EVFILT_SIGNAL,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) wait(timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		spec := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &spec
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	p.mu.Lock()
	var ready []*Source
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		switch ev.Filter {
		case unix.EVFILT_USER:
			// Wake-up: nothing else to do, the loop just re-evaluates
			// its deadline and registrations on the next iteration.
		case unix.EVFILT_READ:
			if src, ok := p.readFDs[int(ev.Ident)]; ok {
				ready = append(ready, src)
			}
		case unix.EVFILT_WRITE:
			if src, ok := p.writeFDs[int(ev.Ident)]; ok {
				ready = append(ready, src)
			}
		case unix.EVFILT_SIGNAL:
			if src, ok := p.sigCBs[unix.Signal(ev.Ident)]; ok {
				ready = append(ready, src)
			}
		}
	}
	p.mu.Unlock()

	for _, src := range ready {
		src.fire()
	}
	return nil
}

func (p *kqueuePoller) wake() {
	ev := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, _ = unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}

func toUnixSignal(sig os.Signal) (unix.Signal, bool) {
	switch s := sig.(type) {
	case unix.Signal:
		return s, true
	case syscall.Signal:
		return unix.Signal(s), true
	default:
		return 0, false
	}
}
