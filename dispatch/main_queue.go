package dispatch

import "context"

// MainQueue runs its items one at a time, in submission order, on
// whichever goroutine calls Run or TryRunOne — typically the process's
// main goroutine, mirroring the source's main dispatch queue that pumps
// work submitted from background threads back onto a designated thread
// (a UI thread, or simply main()). Unlike ParallelQueue and SerialQueue,
// MainQueue never spawns or borrows a worker from a Pool: nothing runs
// until the owning goroutine asks for it.
type MainQueue struct {
	items *ring[queueItem]
}

// NewMainQueue constructs a MainQueue with a bounded backlog of the
// given capacity.
func NewMainQueue(capacity int) *MainQueue {
	return &MainQueue{items: newRing[queueItem](capacity)}
}

// Async submits t, to run the next time the owning goroutine drains the
// queue. Blocks if the backlog is full.
func (mq *MainQueue) Async(t Task) {
	mq.items.push(queueItem{task: t})
}

// GroupAsync submits t and ties its completion to g.
func (mq *MainQueue) GroupAsync(g *Group, t Task) {
	g.Enter()
	mq.Async(NewTask(func() {
		defer g.Exit()
		t.Run()
	}))
}

// Barrier is equivalent to Async on a MainQueue: a single draining
// goroutine already serializes everything.
func (mq *MainQueue) Barrier(t Task) { mq.Async(t) }

// Clear discards every item not yet started.
func (mq *MainQueue) Clear() {
	for {
		if _, ok := mq.items.tryPop(); !ok {
			return
		}
	}
}

// TryRunOne runs at most one pending item without blocking, reporting
// whether an item was run.
func (mq *MainQueue) TryRunOne() bool {
	item, ok := mq.items.tryPop()
	if !ok {
		return false
	}
	runTaskRecover(item.task)
	return true
}

// Run drains the queue until ctx is done, blocking between items. This
// is the method a process's main goroutine calls to act as the queue's
// dedicated executor.
func (mq *MainQueue) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mq.items.push(queueItem{task: NewTask(func() {})})
		case <-done:
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := mq.items.pop()
		runTaskRecover(item.task)
	}
}
