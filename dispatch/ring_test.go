package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := newRing[int](5)
	require.Equal(t, 8, r.Cap())
}

func TestRingPushPopFIFO(t *testing.T) {
	r := newRing[int](4)
	for i := 0; i < 100; i++ {
		r.push(i)
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, i, r.pop())
	}
}

func TestRingTryPopEmpty(t *testing.T) {
	r := newRing[int](4)
	_, ok := r.tryPop()
	require.False(t, ok)
}

func TestRingBlocksWhenFull(t *testing.T) {
	r := newRing[int](2)
	r.push(1)
	r.push(2)

	done := make(chan struct{})
	go func() {
		r.push(3)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("push on a full ring returned before a slot freed up")
	case <-time.After(20 * time.Millisecond):
	}

	require.Equal(t, 1, r.pop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push never unblocked after a slot freed up")
	}
}

func TestRingConcurrentProducersConsumers(t *testing.T) {
	r := newRing[int](16)
	const n = 2000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.push(i)
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			sum += r.pop()
		}
	}()

	wg.Wait()
	require.Equal(t, n*(n-1)/2, sum)
}

func TestRingStartFromReading(t *testing.T) {
	r := newRingStartFromReading[int](4, func(i int) int { return i * 10 })
	got := r.pop()
	require.Equal(t, 0, got)
	r.push(got)
}
