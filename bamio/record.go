package bamio

import (
	"encoding/binary"
	"fmt"
)

// seqBases indexes the 4-bit encoded bases BAM packs two-per-byte
// (SAM §4.2, table on "seq").
const seqBases = "=ACMGRSVTWYHKDBN"

// InvalidReferenceID is the sentinel RefID/NextRefID value BAM uses for
// "no reference".
const InvalidReferenceID int32 = -1

// Record is one decoded BAM alignment record.
type Record struct {
	Name string

	RefID     int32
	Pos       int32 // 0-based
	NextRefID int32
	NextPos   int32
	TLen      int32

	MapQ uint8
	Bin  uint16
	Flag Flag

	CIGAR []CigarOp
	Seq   string // decoded IUPAC bases, "" if l_seq == 0
	Qual  []byte // raw Phred scores (not +33 offset); nil if unavailable (0xFF-filled in the source)

	// Tags holds the record's optional fields exactly as they appear on
	// the wire (tag, type, value, repeated to the end of the record) —
	// undecoded, since per-tag decoding is out of this module's scope.
	Tags []byte
}

// IsPrimary reports whether the record is neither a secondary nor a
// supplementary alignment (SAM §1.4).
func (r Record) IsPrimary() bool {
	return !r.Flag.Has(FlagSecondaryAlignment) && !r.Flag.Has(FlagSupplementaryAlignment)
}

// ParseRecord decodes one alignment record starting at buf[0] (its
// leading block_size field through its trailing optional fields) and
// returns the number of bytes consumed.
func ParseRecord(buf []byte) (rec Record, n int, err error) {
	blockSize, err := readUint32(buf, 0)
	if err != nil {
		return Record{}, 0, fmt.Errorf("bamio: reading record block_size: %w", err)
	}
	total := 4 + int(blockSize)
	if len(buf) < total {
		return Record{}, 0, fmt.Errorf("bamio: record truncated: need %d bytes, have %d", total, len(buf))
	}
	body := buf[4:total]

	if len(body) < 32 {
		return Record{}, 0, fmt.Errorf("bamio: record body shorter than fixed-size fields")
	}
	rec.RefID = int32(binary.LittleEndian.Uint32(body[0:4]))
	rec.Pos = int32(binary.LittleEndian.Uint32(body[4:8]))
	lReadName := int(body[8])
	rec.MapQ = body[9]
	rec.Bin = binary.LittleEndian.Uint16(body[10:12])
	nCigarOp := int(binary.LittleEndian.Uint16(body[12:14]))
	rec.Flag = Flag(binary.LittleEndian.Uint16(body[14:16]))
	lSeq := int(binary.LittleEndian.Uint32(body[16:20]))
	rec.NextRefID = int32(binary.LittleEndian.Uint32(body[20:24]))
	rec.NextPos = int32(binary.LittleEndian.Uint32(body[24:28]))
	rec.TLen = int32(binary.LittleEndian.Uint32(body[28:32]))

	pos := 32
	if len(body) < pos+lReadName {
		return Record{}, 0, fmt.Errorf("bamio: read name truncated")
	}
	if lReadName > 0 {
		// lReadName includes the trailing NUL.
		rec.Name = string(body[pos : pos+lReadName-1])
	}
	pos += lReadName

	if len(body) < pos+4*nCigarOp {
		return Record{}, 0, fmt.Errorf("bamio: CIGAR truncated")
	}
	rec.CIGAR = make([]CigarOp, 0, nCigarOp)
	for i := 0; i < nCigarOp; i++ {
		raw := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		op, ok := decodeCigarOp(raw)
		if !ok {
			return Record{}, 0, fmt.Errorf("bamio: invalid CIGAR operation code")
		}
		rec.CIGAR = append(rec.CIGAR, op)
	}

	seqBytes := (lSeq + 1) / 2
	if len(body) < pos+seqBytes {
		return Record{}, 0, fmt.Errorf("bamio: packed sequence truncated")
	}
	if lSeq > 0 {
		rec.Seq = decodeSeq(body[pos:pos+seqBytes], lSeq)
	}
	pos += seqBytes

	if len(body) < pos+lSeq {
		return Record{}, 0, fmt.Errorf("bamio: quality string truncated")
	}
	if lSeq > 0 {
		qual := body[pos : pos+lSeq]
		// BAM leaves qual 0xFF-filled when quality scores are absent.
		if qual[0] != 0xff {
			rec.Qual = qual
		}
	}
	pos += lSeq

	rec.Tags = body[pos:]

	return rec, total, nil
}

func decodeSeq(packed []byte, lSeq int) string {
	out := make([]byte, lSeq)
	for i := 0; i < lSeq; i++ {
		b := packed[i/2]
		var nibble byte
		if i%2 == 0 {
			nibble = b >> 4
		} else {
			nibble = b & 0xf
		}
		out[i] = seqBases[nibble]
	}
	return string(out)
}
