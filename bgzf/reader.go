package bgzf

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/tsnorri/libbio-sub001/dispatch"
)

// ByteSource is the blocking byte source a Reader frames BGZF blocks out
// of: a file, a pipe, anything that satisfies io.Reader.
type ByteSource = io.Reader

// Delegate receives decompressed blocks as workers finish them, which is
// not necessarily file order — see bam.Reader for a delegate that
// restores file order. DidDecompressBlock runs on a worker goroutine; the
// delegate must call Reader.ReturnOutputBuffer(buf) once done with it so
// the buffer can be recycled.
type Delegate interface {
	DidDecompressBlock(r *Reader, blockIndex uint64, buf *[]byte)
}

// ReaderOption configures a Reader constructed by NewReader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	taskCount   int
	bufferCount int
	pool        *dispatch.Pool
	group       *dispatch.Group
	sem         chan struct{}
}

// WithTaskCount bounds how many blocks may be mid-decompression at once.
// Defaults to runtime.GOMAXPROCS(0).
func WithTaskCount(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.taskCount = n
		}
	}
}

// WithBufferCount bounds how many output buffers are in circulation.
// Defaults to 2*taskCount. The count is rounded up to a power of two
// (minimum 2), the capacity of the ring that holds the buffers.
func WithBufferCount(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.bufferCount = n
		}
	}
}

// WithPool supplies the Pool decompression tasks run on. Defaults to
// dispatch.Shared().
func WithPool(p *dispatch.Pool) ReaderOption {
	return func(c *readerConfig) { c.pool = p }
}

// WithGroup supplies the Group decompression tasks are tracked under. A
// caller that also submits other work to the same Group can Wait for
// everything together. Defaults to a Reader-private Group.
func WithGroup(g *dispatch.Group) ReaderOption {
	return func(c *readerConfig) { c.group = g }
}

// WithSemaphore additionally bounds concurrent decompressions to
// cap(sem), on top of WithTaskCount — for a caller running more than one
// Reader against a shared resource (e.g. a fixed-size scratch arena) that
// needs a single cross-reader cap: pass the same channel to each Reader.
// A nil channel leaves decompressions bounded by WithTaskCount alone.
func WithSemaphore(sem chan struct{}) ReaderOption {
	return func(c *readerConfig) { c.sem = sem }
}

// Reader decodes a BGZF byte stream into Blocks, dispatching decompression
// of each one as a parallel task and handing the result to a Delegate in
// whatever order the workers finish. It does not reorder; pair it with
// bam.Reader for in-order delivery.
type Reader struct {
	src      ByteSource
	input    *circularBuffer
	queue    dispatch.Queue
	group    *dispatch.Group
	delegate Delegate
	extSem   chan struct{}

	taskSlots chan struct{}
	buffers   *dispatch.Ring[*[]byte]

	mu              sync.Mutex
	activeOffsets   []uint64
	releasedOffsets []uint64

	blockIndex uint64

	errOnce sync.Once
	err     error
}

// NewReader constructs a Reader that pulls BGZF frames from src.
func NewReader(src ByteSource, delegate Delegate, opts ...ReaderOption) (*Reader, error) {
	cfg := readerConfig{taskCount: runtime.GOMAXPROCS(0)}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.taskCount <= 0 {
		cfg.taskCount = 1
	}
	if cfg.bufferCount <= 0 {
		cfg.bufferCount = 2 * cfg.taskCount
	}
	if cfg.pool == nil {
		cfg.pool = dispatch.Shared()
	}
	if cfg.group == nil {
		cfg.group = dispatch.NewGroup()
	}

	pageSize := os.Getpagesize()
	pageCount := (cfg.taskCount*MaxBlockSize + pageSize - 1) / pageSize
	if pageCount < 2 {
		pageCount = 2
	}
	input, err := newCircularBuffer(2 * pageCount)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:       src,
		input:     input,
		queue:     dispatch.NewParallelQueue(cfg.pool, cfg.bufferCount+cfg.taskCount),
		group:     cfg.group,
		delegate:  delegate,
		extSem:    cfg.sem,
		taskSlots: make(chan struct{}, cfg.taskCount),
		buffers: dispatch.NewRingStartFromReading[*[]byte](cfg.bufferCount, func(int) *[]byte {
			b := make([]byte, 0, MaxBlockSize)
			return &b
		}),
	}
	return r, nil
}

// ReturnOutputBuffer returns a buffer obtained by a Delegate's
// DidDecompressBlock call back to the Reader's free-buffer pool.
func (r *Reader) ReturnOutputBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	r.buffers.Push(buf)
}

// Run drives the reader to completion: it frames and dispatches blocks
// until src is exhausted, waits for every dispatched decompression to
// finish, and returns the first error encountered by either the driver
// or a worker, if any.
func (r *Reader) Run() error {
	r.input.clear()
	r.activeOffsets = r.activeOffsets[:0]
	r.releasedOffsets = r.releasedOffsets[:0]
	r.blockIndex = 0

	var reading []byte
	var pos uint64

	for {
		w := r.input.writingRange()
		if len(w) == 0 {
			r.group.Wait()
			return fmt.Errorf("bgzf: input buffer has no room to read into; increase WithTaskCount/WithBufferCount")
		}
		n, rerr := r.src.Read(w)
		if n == 0 {
			if rerr != nil && rerr != io.EOF {
				r.group.Wait()
				return fmt.Errorf("bgzf: reading input: %w", rerr)
			}
			break
		}
		r.input.addToOccupied(uint64(n))

		base := r.input.lb()
		reading = r.input.readingRange()

		for uint64(len(reading))-pos >= MaxBlockSize {
			blk, sz, perr := parseBlockHeader(reading[pos:])
			if perr != nil {
				r.group.Wait()
				return fmt.Errorf("bgzf: parsing block header: %w", perr)
			}
			blk.offset = base + pos
			r.submitBlock(blk)
			pos += sz
		}

		r.releaseConsumed(base, pos, &pos)
	}

	for pos < uint64(len(reading)) {
		blk, sz, perr := parseBlockHeader(reading[pos:])
		if perr != nil {
			r.group.Wait()
			return fmt.Errorf("bgzf: parsing final block header: %w", perr)
		}
		blk.offset = r.input.lb() + pos
		r.submitBlock(blk)
		pos += sz
	}

	r.group.Wait()
	return r.err
}

// releaseConsumed merges this pass's released offsets into the active set
// and advances the input buffer's begin as far as the oldest still-active
// offset allows, or all the way through pos if nothing is still active.
// *pos is rewritten to the portion of the just-parsed range that remains
// unreleased, since that range shifts to offset 0 of the next read.
func (r *Reader) releaseConsumed(base, consumed uint64, pos *uint64) {
	r.mu.Lock()
	released := r.releasedOffsets
	r.releasedOffsets = nil
	r.mu.Unlock()

	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
	r.activeOffsets = sortedSetDifference(r.activeOffsets, released)

	if len(r.activeOffsets) == 0 {
		r.input.addToAvailable(consumed)
		*pos = 0
		return
	}
	firstActive := r.activeOffsets[0]
	releasable := firstActive - base
	r.input.addToAvailable(releasable)
	*pos = consumed - releasable
}

// submitBlock acquires a task slot (blocking if taskCount decompressions
// are already in flight), records the block's offset as active, and
// dispatches its decompression.
func (r *Reader) submitBlock(blk Block) {
	r.taskSlots <- struct{}{}
	if r.extSem != nil {
		r.extSem <- struct{}{}
	}

	blk.Index = r.blockIndex
	r.blockIndex++

	r.mu.Lock()
	r.activeOffsets = append(r.activeOffsets, blk.offset)
	r.mu.Unlock()

	task := dispatch.NewTask(func() {
		defer func() { <-r.taskSlots }()
		if r.extSem != nil {
			defer func() { <-r.extSem }()
		}
		r.decompress(blk)
	})
	r.queue.GroupAsync(r.group, task)
}

// decompress runs on a worker: it inflates blk's compressed payload into
// a pooled buffer, releases blk's offset, and hands the buffer to the
// delegate. A decompression failure is recorded on the Reader (the first
// one wins) rather than panicking the worker.
func (r *Reader) decompress(blk Block) {
	bufPtr := r.buffers.Pop()
	buf := (*bufPtr)[:blk.ISize]

	fr := flate.NewReader(bytes.NewReader(blk.CompressedData))
	_, rerr := io.ReadFull(fr, buf)
	if rerr == nil {
		var extra [1]byte
		if m, _ := fr.Read(extra[:]); m > 0 {
			rerr = ErrSizeMismatch
		}
	}
	fr.Close()

	r.releaseOffset(blk.offset)

	if rerr != nil {
		r.setErr(fmt.Errorf("bgzf: decompressing block %d: %w", blk.Index, rerr))
		r.ReturnOutputBuffer(bufPtr)
		return
	}

	*bufPtr = buf
	r.delegate.DidDecompressBlock(r, blk.Index, bufPtr)
}

func (r *Reader) releaseOffset(offset uint64) {
	r.mu.Lock()
	r.releasedOffsets = append(r.releasedOffsets, offset)
	r.mu.Unlock()
}

func (r *Reader) setErr(err error) {
	r.errOnce.Do(func() { r.err = err })
}

// Close releases the reader's input buffer mapping. Call after Run
// returns.
func (r *Reader) Close() error {
	return r.input.close()
}
