package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMainQueueTryRunOneRunsNothingWhenEmpty(t *testing.T) {
	mq := NewMainQueue(4)
	require.False(t, mq.TryRunOne())
}

func TestMainQueueTryRunOneRunsOneItem(t *testing.T) {
	mq := NewMainQueue(4)
	ran := 0
	mq.Async(NewTask(func() { ran++ }))
	mq.Async(NewTask(func() { ran++ }))
	require.True(t, mq.TryRunOne())
	require.Equal(t, 1, ran)
	require.True(t, mq.TryRunOne())
	require.Equal(t, 2, ran)
	require.False(t, mq.TryRunOne())
}

func TestMainQueueRunDrainsUntilCancel(t *testing.T) {
	mq := NewMainQueue(8)
	ctx, cancel := context.WithCancel(context.Background())

	var ran int
	for i := 0; i < 5; i++ {
		mq.Async(NewTask(func() { ran++ }))
	}
	mq.Async(NewTask(cancel))

	errCh := make(chan error, 1)
	go func() { errCh <- mq.Run(ctx) }()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after cancel")
	}
	require.Equal(t, 5, ran)
}

func TestMainQueueGroupAsync(t *testing.T) {
	mq := NewMainQueue(4)
	g := NewGroup()
	ran := false
	g.Enter()
	mq.GroupAsync(g, NewTask(func() { ran = true }))
	g.Exit()
	require.True(t, mq.TryRunOne())
	require.True(t, ran)
}
