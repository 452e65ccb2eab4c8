// Package bam reassembles the decompressed blocks a bgzf.Reader delivers
// out of order back into file order: it parses each block's BAM records
// on whatever worker decompressed it, then reorders and delivers them to
// a Delegate from a single serial queue, strictly by block index.
package bam

import (
	"container/heap"
	"fmt"
	"runtime"
	"sync"

	"github.com/tsnorri/libbio-sub001/bamio"
	"github.com/tsnorri/libbio-sub001/bgzf"
	"github.com/tsnorri/libbio-sub001/dispatch"
)

// Delegate receives the header once, then records in strictly increasing
// block-index order with every record within a block in file order.
type Delegate interface {
	DidParseHeader(r *Reader, h *bamio.Header)
	DidParseRecords(r *Reader, recs []bamio.Record)
}

// recordBlock pairs a parsed record batch with the file-order index of
// the BGZF block it came from.
type recordBlock struct {
	index   uint64
	records []bamio.Record
}

// recordBlockHeap is a container/heap min-heap on recordBlock.index,
// holding blocks that finished parsing out of order until their turn to
// be delivered arrives.
type recordBlockHeap []recordBlock

func (h recordBlockHeap) Len() int            { return len(h) }
func (h recordBlockHeap) Less(i, j int) bool  { return h[i].index < h[j].index }
func (h recordBlockHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recordBlockHeap) Push(x interface{}) { *h = append(*h, x.(recordBlock)) }
func (h *recordBlockHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Reader implements bgzf.Delegate: wire it directly into bgzf.NewReader
// as the delegate to get BAM records out in file order.
type Reader struct {
	queue    dispatch.Queue
	group    *dispatch.Group
	delegate Delegate

	// bufMu guards freeBuffers and expectedBlockIndex; the two condition
	// variables separate the fast path (a just-finished block wakes
	// whichever waiter is blocked on becoming the new next-expected
	// block) from the slow path (any other waiter).
	bufMu              sync.Mutex
	nextBlockReadyCond *sync.Cond
	anyBlockReadyCond  *sync.Cond
	freeBuffers        [][]bamio.Record
	expectedBlockIndex uint64

	// nextBlockIndex and pending are touched only from tasks submitted
	// to queue, which must run them one at a time (a SerialQueue, or any
	// other Queue the caller guarantees serializes its own items).
	nextBlockIndex uint64
	pending        recordBlockHeap
}

// NewReader constructs a Reader that delivers via queue, tracks
// completion on group, and calls delegate from queue's goroutine.
// bufferCount bounds how many blocks may be mid-parse at once; it
// defaults to runtime.GOMAXPROCS(0) when <= 0.
func NewReader(bufferCount int, queue dispatch.Queue, group *dispatch.Group, delegate Delegate) *Reader {
	if bufferCount <= 0 {
		bufferCount = runtime.GOMAXPROCS(0)
	}
	if bufferCount <= 0 {
		bufferCount = 1
	}
	r := &Reader{
		queue:       queue,
		group:       group,
		delegate:    delegate,
		freeBuffers: make([][]bamio.Record, bufferCount),
	}
	r.nextBlockReadyCond = sync.NewCond(&r.bufMu)
	r.anyBlockReadyCond = sync.NewCond(&r.bufMu)
	return r
}

// DidDecompressBlock implements bgzf.Delegate. It runs on whichever
// worker goroutine finished decompressing blockIndex.
func (r *Reader) DidDecompressBlock(br *bgzf.Reader, blockIndex uint64, buf *[]byte) {
	records := r.assignRecordBufferOrWait(blockIndex)
	data := *buf
	pos := 0

	if blockIndex == 0 {
		hh, n, err := bamio.ParseHeader(data)
		if err != nil {
			panic(fmt.Errorf("bam: parsing header: %w", err))
		}
		pos = n
		r.queue.GroupAsync(r.group, dispatch.NewTask(func() {
			r.delegate.DidParseHeader(r, &hh)
		}))
	}

	records = records[:0]
	for pos < len(data) {
		rec, n, err := bamio.ParseRecord(data[pos:])
		if err != nil {
			panic(fmt.Errorf("bam: parsing block %d: %w", blockIndex, err))
		}
		records = append(records, rec)
		pos += n
	}

	br.ReturnOutputBuffer(buf)

	block := recordBlock{index: blockIndex, records: records}
	r.queue.GroupAsync(r.group, dispatch.NewTask(func() {
		r.deliver(block)
	}))
}

// deliver runs on r.queue: if block is the next one expected it is
// handed straight to the delegate, then any already-parsed blocks
// sitting at the top of the pending heap are drained in the same way;
// otherwise block waits on the heap for its turn.
func (r *Reader) deliver(block recordBlock) {
	if r.nextBlockIndex == block.index {
		r.delegate.DidParseRecords(r, block.records)
		r.prepareForNextBlockAndReturnRecordBuffer(block.records)
	} else {
		heap.Push(&r.pending, block)
	}

	for len(r.pending) > 0 && r.pending[0].index == r.nextBlockIndex {
		top := heap.Pop(&r.pending).(recordBlock)
		r.delegate.DidParseRecords(r, top.records)
		r.prepareForNextBlockAndReturnRecordBuffer(top.records)
	}
}

func (r *Reader) prepareForNextBlockAndReturnRecordBuffer(buf []bamio.Record) {
	r.nextBlockIndex++

	r.bufMu.Lock()
	r.expectedBlockIndex = r.nextBlockIndex
	r.freeBuffers = append(r.freeBuffers, buf)
	r.bufMu.Unlock()

	r.nextBlockReadyCond.Signal()
	r.anyBlockReadyCond.Signal()
}

// assignRecordBufferOrWait blocks until a record buffer is available for
// blockIndex: immediately if more than one buffer is free (there is
// slack to spare), or as soon as blockIndex becomes the expected block
// (the single free buffer is reserved for whichever block is next, so
// the pipeline always makes forward progress even at buffer_count == 1).
func (r *Reader) assignRecordBufferOrWait(blockIndex uint64) []bamio.Record {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	for {
		if len(r.freeBuffers) > 1 || blockIndex == r.expectedBlockIndex {
			last := len(r.freeBuffers) - 1
			buf := r.freeBuffers[last]
			r.freeBuffers = r.freeBuffers[:last]
			return buf
		}
		if blockIndex == 1+r.expectedBlockIndex {
			r.nextBlockReadyCond.Wait()
		} else {
			r.anyBlockReadyCond.Wait()
		}
	}
}
