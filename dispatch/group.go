package dispatch

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// Group is a counting synchronizer for a dynamic set of asynchronously
// dispatched tasks. Enter and Exit must be balanced by construction:
// Exit panics if the count would go negative, a programmer-error
// contract violation per the runtime's error-handling design.
type Group struct {
	count atomix.Int64
	mu    sync.Mutex
	cond  sync.Cond
	once  sync.Once
}

// NewGroup returns a ready-to-use Group with a zero count.
func NewGroup() *Group {
	g := &Group{}
	g.init()
	return g
}

func (g *Group) init() {
	g.once.Do(func() { g.cond.L = &g.mu })
}

// Enter increments the group's outstanding-task count.
func (g *Group) Enter() {
	g.init()
	g.count.AddAcqRel(1)
}

// Exit decrements the outstanding-task count, waking any Wait or Notify
// callers once it reaches zero. Exit panics if called more times than
// Enter, mirroring the "exiting a group that has not been entered"
// contract violation.
func (g *Group) Exit() {
	g.init()
	n := g.count.AddAcqRel(-1)
	if n < 0 {
		panic("dispatch: Group.Exit called without a matching Enter")
	}
	if n == 0 {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

// Wait blocks until the group's count reaches zero. If the count is
// already zero, Wait returns immediately.
func (g *Group) Wait() {
	g.init()
	g.mu.Lock()
	for g.count.LoadAcquire() != 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Notify arranges for t to run on q once the group's count reaches
// zero. If the count is already zero, t is submitted immediately.
func (g *Group) Notify(q Queue, t Task) {
	g.init()
	if g.count.LoadAcquire() == 0 {
		q.Async(t)
		return
	}
	go func() {
		g.Wait()
		q.Async(t)
	}()
}
