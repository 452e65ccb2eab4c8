package bgzf

import "errors"

var (
	// ErrBadMagic is returned when a block does not start with the gzip
	// ID1/ID2/CM bytes BGZF requires.
	ErrBadMagic = errors.New("bgzf: bad block magic")
	// ErrMissingBCSubfield is returned when a block's gzip FEXTRA field
	// does not contain the BC subfield BGZF uses to carry BSIZE.
	ErrMissingBCSubfield = errors.New("bgzf: missing BC extra subfield")
	// ErrShortRead is returned when fewer bytes are buffered than a
	// block header (or a whole block) requires to parse.
	ErrShortRead = errors.New("bgzf: short read while parsing block header")
	// ErrSizeMismatch is returned when a block decompresses to more bytes
	// than its declared ISIZE. A block that decompresses to fewer bytes
	// fails with the io.ReadFull error (io.ErrUnexpectedEOF or io.EOF)
	// instead.
	ErrSizeMismatch = errors.New("bgzf: decompressed size does not match ISIZE")
	// ErrClosed names the closed-reader condition. No Reader method
	// returns it: Reader does not record whether Close has been called.
	ErrClosed = errors.New("bgzf: reader closed")
)
