package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBarrierRunsExactlyOnce(t *testing.T) {
	var runs atomic.Int32
	b := newBarrier(NewTask(func() { runs.Add(1) }))
	b.previousHasFinished.Store(true)

	done := make(chan struct{})
	const n = 50
	for i := 0; i < n; i++ {
		go func() {
			b.run()
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	require.EqualValues(t, 1, runs.Load())
}

func TestBarrierWaitsForPredecessor(t *testing.T) {
	var order []string
	pred := newBarrier(NewTask(func() { order = append(order, "pred") }))
	pred.previousHasFinished.Store(true)
	succ := newBarrier(NewTask(func() { order = append(order, "succ") }))
	pred.next.Store(succ)

	succDone := make(chan struct{})
	go func() {
		succ.run()
		close(succDone)
	}()

	select {
	case <-succDone:
		t.Fatal("successor ran before predecessor finished")
	case <-time.After(20 * time.Millisecond):
	}

	pred.retain()
	pred.run()
	pred.supersede()
	pred.release()

	select {
	case <-succDone:
	case <-time.After(time.Second):
		t.Fatal("successor never ran after predecessor finished")
	}

	require.Equal(t, []string{"pred", "succ"}, order)
}

func TestBarrierHeadHasNoPredecessorWait(t *testing.T) {
	ran := make(chan struct{})
	b := newBarrier(NewTask(func() { close(ran) }))
	b.previousHasFinished.Store(true)
	b.run()
	select {
	case <-ran:
	default:
		t.Fatal("head barrier did not run its task")
	}
}
