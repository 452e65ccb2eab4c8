// Package bamio implements the minimal binary decoding BAM's plain-text
// header and alignment records require — just enough for bam.Reader to
// parse each BGZF block's worth of records and hand them to a delegate.
// It does not attempt to be a general SAM/BAM library.
package bamio

import (
	"encoding/binary"
	"fmt"
)

var bamMagic = [4]byte{'B', 'A', 'M', 1}

// ReferenceSequence is one entry from a BAM header's reference list: a
// name and its length in bases.
type ReferenceSequence struct {
	Name   string
	Length int32
}

// Header is a decoded BAM header: the embedded SAM-text header verbatim
// (not itself re-parsed — out of scope per the module's stated
// boundaries) plus the binary reference-sequence dictionary BAM stores
// alongside it.
type Header struct {
	Text       string
	References []ReferenceSequence
}

// ParseHeader decodes a BAM header starting at buf[0] (the "BAM\1" magic
// string through the last reference sequence entry) and returns the
// number of bytes consumed, so the caller can continue parsing
// alignment records from buf[n:].
func ParseHeader(buf []byte) (hh Header, n int, err error) {
	if len(buf) < 4 || [4]byte{buf[0], buf[1], buf[2], buf[3]} != bamMagic {
		return Header{}, 0, fmt.Errorf("bamio: invalid BAM magic string")
	}
	pos := 4

	lText, err := readUint32(buf, pos)
	if err != nil {
		return Header{}, 0, err
	}
	pos += 4
	if len(buf) < pos+int(lText) {
		return Header{}, 0, fmt.Errorf("bamio: header text truncated")
	}
	// SAM §4.2: the embedded text is not necessarily NUL-terminated.
	hh.Text = string(buf[pos : pos+int(lText)])
	pos += int(lText)

	nRef, err := readUint32(buf, pos)
	if err != nil {
		return Header{}, 0, err
	}
	pos += 4

	hh.References = make([]ReferenceSequence, nRef)
	for i := range hh.References {
		lName, err := readUint32(buf, pos)
		if err != nil {
			return Header{}, 0, err
		}
		pos += 4
		if lName == 0 || len(buf) < pos+int(lName) {
			return Header{}, 0, fmt.Errorf("bamio: reference sequence name truncated")
		}
		// lName counts the trailing NUL; the name itself is one byte
		// shorter.
		hh.References[i].Name = string(buf[pos : pos+int(lName)-1])
		pos += int(lName)

		lRef, err := readInt32(buf, pos)
		if err != nil {
			return Header{}, 0, err
		}
		pos += 4
		hh.References[i].Length = lRef
	}

	return hh, pos, nil
}

func readUint32(buf []byte, pos int) (uint32, error) {
	if len(buf) < pos+4 {
		return 0, fmt.Errorf("bamio: truncated reading uint32 at offset %d", pos)
	}
	return binary.LittleEndian.Uint32(buf[pos : pos+4]), nil
}

func readInt32(buf []byte, pos int) (int32, error) {
	v, err := readUint32(buf, pos)
	return int32(v), err
}
