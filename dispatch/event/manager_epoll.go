//go:build linux

package event

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tsnorri/libbio-sub001/internal/xlog"
)

// epollPoller is the linux poller implementation: epoll for fd
// readiness, signalfd for signals delivered without touching Go's usual
// os/signal channel, and an eventfd for cross-goroutine wake-up of a
// blocked epoll_wait, grounded on the teacher's FastPoller
// (poller_linux.go) and its eventfd-based wake pipe (wakeup_linux.go).
type epollPoller struct {
	epfd int

	mu       sync.Mutex
	readFDs  map[int]*Source
	writeFDs map[int]*Source

	sigMask unix.Sigset_t
	sigfd   int
	sigCBs  map[unix.Signal]*Source

	wakeFD int

	eventBuf [128]unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("event: epoll_create1: %w", err)
	}
	p := &epollPoller{
		epfd:     epfd,
		readFDs:  make(map[int]*Source),
		writeFDs: make(map[int]*Source),
		sigCBs:   make(map[unix.Signal]*Source),
		sigfd:    -1,
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("event: eventfd: %w", err)
	}
	p.wakeFD = wakeFD
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("event: epoll_ctl(wake): %w", err)
	}
	return p, nil
}

func (p *epollPoller) registerFD(fd int, write bool, src *Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.readFDs
	if write {
		m = p.writeFDs
	}
	if _, ok := m[fd]; ok {
		return ErrFDAlreadyRegistered
	}

	op := unix.EPOLL_CTL_ADD
	if _, ok := p.readFDs[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if _, ok := p.writeFDs[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}

	m[fd] = src
	events := p.epollEventsFor(fd)
	if err := unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)}); err != nil {
		delete(m, fd)
		return err
	}
	return nil
}

func (p *epollPoller) epollEventsFor(fd int) uint32 {
	var events uint32
	if _, ok := p.readFDs[fd]; ok {
		events |= unix.EPOLLIN
	}
	if _, ok := p.writeFDs[fd]; ok {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *epollPoller) unregisterFD(fd int, write bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.readFDs
	if write {
		m = p.writeFDs
	}
	if _, ok := m[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(m, fd)

	_, readStill := p.readFDs[fd]
	_, writeStill := p.writeFDs[fd]
	switch {
	case !readStill && !writeStill:
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	default:
		events := p.epollEventsFor(fd)
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
	}
}

func (p *epollPoller) registerSignal(sig syscallSignal, src *Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := toUnixSignal(sig)
	if !ok {
		return fmt.Errorf("event: unsupported signal %v", sig)
	}
	if _, ok := p.sigCBs[s]; ok {
		return ErrSignalAlreadyRegistered
	}
	p.sigCBs[s] = src
	return p.resetSignalfdLocked()
}

func (p *epollPoller) unregisterSignal(sig syscallSignal) error {
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
	return p.resetSignalfdLocked()
}

// resetSignalfdLocked rebuilds the signalfd mask from p.sigCBs. Must be
// called with p.mu held.
func (p *epollPoller) resetSignalfdLocked() error {
	if p.sigfd >= 0 {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, p.sigfd, nil)
		_ = unix.Close(p.sigfd)
		p.sigfd = -1
	}
	if len(p.sigCBs) == 0 {
		return nil
	}

	var mask unix.Sigset_t
	for s := range p.sigCBs {
		addSignal(&mask, s)
	}
	if err := unix.SigprocMask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return fmt.Errorf("event: sigprocmask: %w", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("event: signalfd: %w", err)
	}
	p.sigfd = fd
	p.sigMask = mask
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
}

func (p *epollPoller) wait(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	p.mu.Lock()
	var ready []*Source
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		events := p.eventBuf[i].Events
		switch {
		case fd == p.wakeFD:
			drainEventfd(p.wakeFD)
		case fd == p.sigfd:
			ready = append(ready, p.drainSignalfdLocked()...)
		default:
			if events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				if src, ok := p.readFDs[fd]; ok {
					ready = append(ready, src)
				}
			}
			if events&unix.EPOLLOUT != 0 {
				if src, ok := p.writeFDs[fd]; ok {
					ready = append(ready, src)
				}
			}
		}
	}
	p.mu.Unlock()

	for _, src := range ready {
		src.fire()
	}
	return nil
}

// drainSignalfdLocked reads every pending signalfd_siginfo and returns
// the callbacks registered for the signals seen. Must be called with
// p.mu held.
func (p *epollPoller) drainSignalfdLocked() []*Source {
	var srcs []*Source
	var buf unix.SignalfdSiginfo
	const sz = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	for {
		n, err := unix.Read(p.sigfd, (*[sz]byte)(unsafe.Pointer(&buf))[:])
		if err != nil || n < sz {
			return srcs
		}
		if src, ok := p.sigCBs[unix.Signal(buf.Signo)]; ok {
			srcs = append(srcs, src)
		}
	}
}

func (p *epollPoller) wake() {
	var one uint64 = 1
	_, _ = unix.Write(p.wakeFD, (*[8]byte)(unsafe.Pointer(&one))[:])
}

func (p *epollPoller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sigfd >= 0 {
		if err := unix.Close(p.sigfd); err != nil {
			xlog.Logger().Warning().Err(err).Log("event: closing signalfd")
		}
	}
	if err := unix.Close(p.wakeFD); err != nil {
		xlog.Logger().Warning().Err(err).Log("event: closing wake eventfd")
	}
	return unix.Close(p.epfd)
}

func drainEventfd(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

// toUnixSignal converts an os.Signal to the unix.Signal representation
// needed for a sigset. Every os.Signal produced by the os/signal package
// on a unix target is concretely a syscall.Signal, which shares
// unix.Signal's underlying int representation.
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

// addSignal sets sig's bit in mask, matching the layout glibc's
// sigaddset uses: signals are 1-indexed, packed 64 to a word.
func addSignal(mask *unix.Sigset_t, sig unix.Signal) {
	bit := uint(sig) - 1
	mask.Val[bit/64] |= 1 << (bit % 64)
}
