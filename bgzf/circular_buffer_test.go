package bgzf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCircularBufferWriteReadRoundTrip(t *testing.T) {
	cb, err := newCircularBuffer(1)
	require.NoError(t, err)
	defer cb.close()

	data := []byte("hello, bgzf ring buffer")
	w := cb.writingRange()
	require.GreaterOrEqual(t, len(w), len(data))
	n := copy(w, data)
	cb.addToOccupied(uint64(n))

	require.Equal(t, data, cb.readingRange()[:len(data)])
	require.Equal(t, uint64(len(data)), cb.occupied())
}

func TestCircularBufferWrapsAcrossCapacity(t *testing.T) {
	cb, err := newCircularBuffer(1)
	require.NoError(t, err)
	defer cb.close()

	cap := cb.capacity()
	chunk := make([]byte, cap/4)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	// Fill and drain repeatedly so begin/end cross the physical capacity
	// boundary multiple times, exercising the wraparound path on both
	// the double-mmap and fallback backends.
	for round := 0; round < 8; round++ {
		w := cb.writingRange()
		require.GreaterOrEqual(t, len(w), len(chunk))
		n := copy(w, chunk)
		cb.addToOccupied(uint64(n))

		r := cb.readingRange()
		require.Equal(t, chunk, r[:len(chunk)])
		cb.addToAvailable(uint64(n))
		require.Equal(t, uint64(0), cb.occupied())
	}
}

func TestCircularBufferAvailableShrinksAsOccupiedGrows(t *testing.T) {
	cb, err := newCircularBuffer(1)
	require.NoError(t, err)
	defer cb.close()

	cap := cb.capacity()
	require.Equal(t, cap, cb.available())
	cb.addToOccupied(10)
	require.Equal(t, cap-10, cb.available())
	require.Equal(t, uint64(10), cb.occupied())

	cb.addToAvailable(4)
	require.Equal(t, uint64(6), cb.occupied())
	require.Equal(t, cap-6, cb.available())
}

func TestCircularBufferClearResetsCursors(t *testing.T) {
	cb, err := newCircularBuffer(1)
	require.NoError(t, err)
	defer cb.close()

	cb.addToOccupied(100)
	cb.addToAvailable(50)
	cb.clear()
	require.Equal(t, uint64(0), cb.occupied())
	require.Equal(t, cb.capacity(), cb.available())
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		require.Equal(t, want, nextPowerOfTwo(in), "in=%d", in)
	}
}
