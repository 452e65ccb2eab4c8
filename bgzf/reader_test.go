package bgzf

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"hash/crc32"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeBlock builds one on-wire BGZF block (gzip member, BC extra
// subfield, trailer) wrapping payload's raw deflate encoding.
func encodeBlock(t *testing.T, payload []byte) []byte {
	t.Helper()

	var cdata bytes.Buffer
	fw, err := flate.NewWriter(&cdata, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	var buf bytes.Buffer
	buf.WriteByte(gzipID1)
	buf.WriteByte(gzipID2)
	buf.WriteByte(gzipCM)
	buf.WriteByte(gzipFEXTRA)
	buf.Write(make([]byte, 4)) // MTIME
	buf.WriteByte(0)           // XFL
	buf.WriteByte(0xff)        // OS

	var extra bytes.Buffer
	extra.WriteByte('B')
	extra.WriteByte('C')
	var slen [2]byte
	binary.LittleEndian.PutUint16(slen[:], 2)
	extra.Write(slen[:])
	bsizePos := extra.Len()
	extra.Write([]byte{0, 0}) // patched once totalSize is known

	var xlen [2]byte
	binary.LittleEndian.PutUint16(xlen[:], uint16(extra.Len()))
	buf.Write(xlen[:])
	buf.Write(extra.Bytes())
	buf.Write(cdata.Bytes())

	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(payload)))
	buf.Write(trailer[:])

	total := buf.Bytes()
	bsize := uint16(len(total) - 1)
	binary.LittleEndian.PutUint16(total[fixedHeaderSize+bsizePos:fixedHeaderSize+bsizePos+2], bsize)

	return total
}

type collectingDelegate struct {
	mu      sync.Mutex
	payload map[uint64][]byte
}

func (d *collectingDelegate) DidDecompressBlock(r *Reader, blockIndex uint64, buf *[]byte) {
	d.mu.Lock()
	got := make([]byte, len(*buf))
	copy(got, *buf)
	d.payload[blockIndex] = got
	d.mu.Unlock()
	r.ReturnOutputBuffer(buf)
}

func TestReaderDecodesBlocksOutOfOrderDelivery(t *testing.T) {
	var want [][]byte
	var wire bytes.Buffer
	for i := 0; i < 40; i++ {
		payload := bytes.Repeat([]byte{byte('a' + i%26)}, 100+i*37)
		want = append(want, payload)
		wire.Write(encodeBlock(t, payload))
	}

	del := &collectingDelegate{payload: make(map[uint64][]byte)}
	r, err := NewReader(bytes.NewReader(wire.Bytes()), del, WithTaskCount(4), WithBufferCount(8))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Run())
	require.Len(t, del.payload, len(want))
	for i, payload := range want {
		require.Equal(t, payload, del.payload[uint64(i)], "block %d", i)
	}
}

func TestReaderSingleSmallBlock(t *testing.T) {
	del := &collectingDelegate{payload: make(map[uint64][]byte)}
	r, err := NewReader(bytes.NewReader(encodeBlock(t, []byte("hello, bgzf"))), del)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Run())
	require.Equal(t, []byte("hello, bgzf"), del.payload[0])
}

func TestReaderPropagatesSizeMismatch(t *testing.T) {
	blk := encodeBlock(t, []byte("some data that will be truncated"))
	// Corrupt the ISIZE trailer field so the decompressed length no
	// longer matches what the block declares.
	binary.LittleEndian.PutUint32(blk[len(blk)-4:], 4)

	del := &collectingDelegate{payload: make(map[uint64][]byte)}
	r, err := NewReader(bytes.NewReader(blk), del)
	require.NoError(t, err)
	defer r.Close()

	err = r.Run()
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestSortedSetDifferenceAndUnion(t *testing.T) {
	a := []uint64{1, 3, 5, 7, 9}
	b := []uint64{3, 7}
	require.Equal(t, []uint64{1, 5, 9}, sortedSetDifference(a, b))
	require.Equal(t, []uint64{1, 3, 5, 7, 9}, sortedSetUnion(a, b))
	require.Equal(t, []uint64{1, 2, 3, 5, 7, 9}, sortedSetUnion(a, []uint64{2}))

	unsortedCheck := []uint64{9, 5, 3, 1}
	sort.Slice(unsortedCheck, func(i, j int) bool { return unsortedCheck[i] < unsortedCheck[j] })
	require.Equal(t, []uint64{1, 3, 5, 9}, unsortedCheck)
}
