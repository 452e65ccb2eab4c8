package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupWaitReturnsImmediatelyWhenEmpty(t *testing.T) {
	g := NewGroup()
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return for an empty group")
	}
}

func TestGroupWaitBlocksUntilExit(t *testing.T) {
	g := NewGroup()
	g.Enter()

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the matching Exit")
	case <-time.After(20 * time.Millisecond):
	}

	g.Exit()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after Exit")
	}
}

func TestGroupExitUnderflowPanics(t *testing.T) {
	g := NewGroup()
	require.Panics(t, g.Exit)
}

func TestGroupNotifySubmitsAfterDrain(t *testing.T) {
	g := NewGroup()
	g.Enter()
	q := NewMainQueue(4)

	var ran atomic.Bool
	g.Notify(q, NewTask(func() { ran.Store(true) }))

	require.False(t, q.TryRunOne())
	g.Exit()

	require.Eventually(t, func() bool {
		q.TryRunOne()
		return ran.Load()
	}, time.Second, time.Millisecond)
}

func TestGroupNotifySubmitsImmediatelyWhenAlreadyEmpty(t *testing.T) {
	g := NewGroup()
	q := NewMainQueue(4)
	g.Notify(q, NewTask(func() {}))
	require.True(t, q.TryRunOne())
}
