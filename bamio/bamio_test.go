package bamio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putI32(buf *bytes.Buffer, v int32) { putU32(buf, uint32(v)) }

func putU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func encodeHeader(t *testing.T, text string, refs []ReferenceSequence) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("BAM")
	buf.WriteByte(1)
	putU32(&buf, uint32(len(text)))
	buf.WriteString(text)
	putU32(&buf, uint32(len(refs)))
	for _, r := range refs {
		putU32(&buf, uint32(len(r.Name)+1))
		buf.WriteString(r.Name)
		buf.WriteByte(0)
		putI32(&buf, r.Length)
	}
	return buf.Bytes()
}

func TestParseHeader(t *testing.T) {
	refs := []ReferenceSequence{
		{Name: "chr1", Length: 248956422},
		{Name: "chr2", Length: 242193529},
	}
	wire := encodeHeader(t, "@HD\tVN:1.6\n", refs)

	hh, n, err := ParseHeader(wire)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)
	require.Equal(t, "@HD\tVN:1.6\n", hh.Text)
	require.Equal(t, refs, hh.References)
}

func TestParseHeaderBadMagic(t *testing.T) {
	_, _, err := ParseHeader([]byte("XAM\x01\x00\x00\x00\x00"))
	require.Error(t, err)
}

func encodeRecord(t *testing.T, name string, refID, pos int32, mapq uint8, cigar []CigarOp, seq string, qual []byte, flag Flag) []byte {
	t.Helper()
	var body bytes.Buffer
	putI32(&body, refID)
	putI32(&body, pos)
	body.WriteByte(byte(len(name) + 1))
	body.WriteByte(mapq)
	putU16(&body, 0) // bin
	putU16(&body, uint16(len(cigar)))
	putU16(&body, uint16(flag))
	putU32(&body, uint32(len(seq)))
	putI32(&body, InvalidReferenceID)
	putI32(&body, -1)
	putI32(&body, 0)

	body.WriteString(name)
	body.WriteByte(0)

	for _, c := range cigar {
		opIdx := bytes.IndexByte([]byte(cigarOps), c.Op)
		require.GreaterOrEqual(t, opIdx, 0)
		putU32(&body, (c.Len<<4)|uint32(opIdx))
	}

	packed := make([]byte, (len(seq)+1)/2)
	for i, base := range seq {
		nibble := byte(bytes.IndexByte([]byte(seqBases), byte(base)))
		if i%2 == 0 {
			packed[i/2] |= nibble << 4
		} else {
			packed[i/2] |= nibble
		}
	}
	body.Write(packed)

	if qual == nil {
		q := bytes.Repeat([]byte{0xff}, len(seq))
		body.Write(q)
	} else {
		body.Write(qual)
	}

	var wire bytes.Buffer
	putU32(&wire, uint32(body.Len()))
	wire.Write(body.Bytes())
	return wire.Bytes()
}

func TestParseRecordRoundTrip(t *testing.T) {
	cigar := []CigarOp{{Op: 'M', Len: 36}, {Op: 'S', Len: 4}}
	qual := []byte{30, 31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 40, 30, 31}
	wire := encodeRecord(t, "read1", 0, 100, 60, cigar, "ACGTACGTACGTACGTACGTACGTACGTACGTACGT", qual, FlagFirstSegment|FlagProperlyAligned)

	rec, n, err := ParseRecord(wire)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)
	require.Equal(t, "read1", rec.Name)
	require.Equal(t, int32(0), rec.RefID)
	require.Equal(t, int32(100), rec.Pos)
	require.Equal(t, uint8(60), rec.MapQ)
	require.Equal(t, cigar, rec.CIGAR)
	require.Equal(t, "ACGTACGTACGTACGTACGTACGTACGTACGTACGT", rec.Seq)
	require.Equal(t, qual, rec.Qual)
	require.True(t, rec.IsPrimary())
	require.True(t, rec.Flag.Has(FlagFirstSegment))
}

func TestParseRecordMissingQual(t *testing.T) {
	wire := encodeRecord(t, "read2", InvalidReferenceID, -1, 0, nil, "AC", nil, FlagUnmapped)
	rec, _, err := ParseRecord(wire)
	require.NoError(t, err)
	require.Nil(t, rec.Qual)
	require.Equal(t, "AC", rec.Seq)
}

func TestParseRecordSecondaryIsNotPrimary(t *testing.T) {
	wire := encodeRecord(t, "read3", 0, 0, 0, nil, "", nil, FlagSecondaryAlignment)
	rec, _, err := ParseRecord(wire)
	require.NoError(t, err)
	require.False(t, rec.IsPrimary())
	require.Equal(t, "", rec.Seq)
}
