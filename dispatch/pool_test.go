package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRunnable struct {
	mu    sync.Mutex
	items []func()
	runs  atomic.Int32
}

func (r *countingRunnable) push(f func()) {
	r.mu.Lock()
	r.items = append(r.items, f)
	r.mu.Unlock()
}

func (r *countingRunnable) runNext() bool {
	r.mu.Lock()
	if len(r.items) == 0 {
		r.mu.Unlock()
		return false
	}
	f := r.items[0]
	r.items = r.items[1:]
	r.mu.Unlock()
	f()
	r.runs.Add(1)
	return true
}

func TestPoolNotifyRunsWork(t *testing.T) {
	p := NewPool(WithMaxWorkers(2))
	defer p.Close()

	r := &countingRunnable{}
	done := make(chan struct{})
	r.push(func() { close(done) })
	p.notify(r)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool never ran the notified work")
	}
}

func TestPoolRespectsMaxWorkers(t *testing.T) {
	p := NewPool(WithMaxWorkers(1))
	defer p.Close()

	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	block := make(chan struct{})

	r1 := &countingRunnable{}
	r1.push(func() {
		n := concurrent.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		<-block
		concurrent.Add(-1)
	})
	r2 := &countingRunnable{}
	started2 := make(chan struct{})
	r2.push(func() {
		close(started2)
		concurrent.Add(1)
		concurrent.Add(-1)
	})

	p.notify(r1)
	p.notify(r2)

	select {
	case <-started2:
		t.Fatal("a second worker ran while maxWorkers was 1 and the first was busy")
	case <-time.After(20 * time.Millisecond):
	}
	close(block)

	require.Eventually(t, func() bool {
		select {
		case <-started2:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestPoolWorkerRetiresAfterIdleTimeout(t *testing.T) {
	p := NewPool(WithMaxWorkers(4), WithIdleTimeout(10*time.Millisecond))
	defer p.Close()

	r := &countingRunnable{}
	done := make(chan struct{})
	r.push(func() { close(done) })
	p.notify(r)
	<-done

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.workers == 0
	}, time.Second, time.Millisecond)
}

func TestSharedPoolIsASingleton(t *testing.T) {
	require.Same(t, Shared(), Shared())
}
