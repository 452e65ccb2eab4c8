package bgzf

import "encoding/binary"

// BGZF framing constants per the SAM/BAM specification: a BGZF block is
// an ordinary gzip member whose FEXTRA field carries a single "BC"
// subfield holding BSIZE (total block size, minus one).
const (
	gzipID1    = 0x1f
	gzipID2    = 0x8b
	gzipCM     = 8
	gzipFEXTRA = 0x04

	fixedHeaderSize = 12 // ID1 ID2 CM FLG MTIME(4) XFL OS XLEN(2)
	trailerSize     = 8  // CRC32(4) + ISIZE(4)

	// MaxBlockSize is the largest a single BGZF block can be (BSIZE is a
	// 16-bit field, so total block size fits in an unsigned 16-bit value
	// plus one). The streaming reader only attempts to parse a block once
	// at least this many bytes are buffered contiguously.
	MaxBlockSize = 1 << 16
)

// parseBlockHeader parses a single BGZF block starting at buf[0], which
// must contain at least the block's full length — the caller guarantees
// this by only parsing once MaxBlockSize bytes are buffered contiguously.
// It returns the block descriptor, with Index left unset for the caller
// to assign, and totalSize: the number of bytes (header + compressed
// data + trailer) the block occupies in the stream.
func parseBlockHeader(buf []byte) (blk Block, totalSize uint64, err error) {
	if len(buf) < fixedHeaderSize {
		return Block{}, 0, ErrShortRead
	}
	if buf[0] != gzipID1 || buf[1] != gzipID2 || buf[2] != gzipCM {
		return Block{}, 0, ErrBadMagic
	}
	flg := buf[3]
	xlen := int(binary.LittleEndian.Uint16(buf[10:12]))
	if flg&gzipFEXTRA == 0 || xlen == 0 {
		return Block{}, 0, ErrMissingBCSubfield
	}

	extraStart := fixedHeaderSize
	if len(buf) < extraStart+xlen {
		return Block{}, 0, ErrShortRead
	}
	bsize, ok := findBCSubfield(buf[extraStart : extraStart+xlen])
	if !ok {
		return Block{}, 0, ErrMissingBCSubfield
	}

	totalSize = uint64(bsize) + 1
	cdataStart := uint64(extraStart + xlen)
	if totalSize < cdataStart+trailerSize {
		return Block{}, 0, ErrShortRead
	}
	cdataLen := totalSize - cdataStart - trailerSize
	if uint64(len(buf)) < totalSize {
		return Block{}, 0, ErrShortRead
	}

	cdata := buf[cdataStart : cdataStart+cdataLen]
	isize := binary.LittleEndian.Uint32(buf[totalSize-4 : totalSize])

	return Block{CompressedData: cdata, ISize: isize, totalSize: totalSize}, totalSize, nil
}

// findBCSubfield scans a gzip FEXTRA field for the "BC" subfield BGZF
// requires, returning its BSIZE payload.
func findBCSubfield(extra []byte) (uint16, bool) {
	for len(extra) >= 4 {
		si1, si2 := extra[0], extra[1]
		slen := int(binary.LittleEndian.Uint16(extra[2:4]))
		if len(extra) < 4+slen {
			return 0, false
		}
		if si1 == 'B' && si2 == 'C' && slen == 2 {
			return binary.LittleEndian.Uint16(extra[4:6]), true
		}
		extra = extra[4+slen:]
	}
	return 0, false
}
