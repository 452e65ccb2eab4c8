package bgzf

// Block describes one parsed BGZF block: a window of compressed bytes
// backed directly by the reader's circular input buffer (valid only
// until the reader releases it), its declared uncompressed size, and
// where it falls in the block sequence.
type Block struct {
	CompressedData []byte
	ISize          uint32
	Index          uint64

	offset    uint64 // left-bound logical offset of CompressedData's block within the input buffer
	totalSize uint64 // header + compressed data + trailer: bytes this block consumes from the stream
}
