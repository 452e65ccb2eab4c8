package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimersFireInDeadlineOrder(t *testing.T) {
	ts := newTimers()
	var order []int
	base := time.Now()
	ts.add(base.Add(30*time.Millisecond), 0, func() { order = append(order, 3) })
	ts.add(base.Add(10*time.Millisecond), 0, func() { order = append(order, 1) })
	ts.add(base.Add(20*time.Millisecond), 0, func() { order = append(order, 2) })

	ts.fireDue(base.Add(100*time.Millisecond), func(cb func()) { cb() })
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTimersCancelSkipsFiring(t *testing.T) {
	ts := newTimers()
	fired := false
	id := ts.add(time.Now(), 0, func() { fired = true })
	require.True(t, ts.cancel(id))
	ts.fireDue(time.Now().Add(time.Second), func(cb func()) { cb() })
	require.False(t, fired)
}

func TestTimersCancelUnknownIDReturnsFalse(t *testing.T) {
	ts := newTimers()
	require.False(t, ts.cancel(TimerID(999)))
}

func TestTimersNextDeadlineSkipsCanceledHead(t *testing.T) {
	ts := newTimers()
	base := time.Now()
	id := ts.add(base, 0, func() {})
	ts.add(base.Add(time.Hour), 0, func() {})
	ts.cancel(id)

	when, ok := ts.nextDeadline()
	require.True(t, ok)
	require.True(t, when.After(base.Add(30*time.Minute)))
}

func TestTimersRepeatingTimerReschedules(t *testing.T) {
	ts := newTimers()
	runs := 0
	base := time.Now()
	ts.add(base, 10*time.Millisecond, func() { runs++ })

	ts.fireDue(base, func(cb func()) { cb() })
	require.Equal(t, 1, runs)

	when, ok := ts.nextDeadline()
	require.True(t, ok)
	require.Equal(t, base.Add(10*time.Millisecond), when)

	ts.fireDue(base.Add(10*time.Millisecond), func(cb func()) { cb() })
	require.Equal(t, 2, runs)
}

func TestTimersNextDeadlineEmpty(t *testing.T) {
	ts := newTimers()
	_, ok := ts.nextDeadline()
	require.False(t, ok)
}
