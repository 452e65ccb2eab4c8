package bamio

// Flag holds a SAM/BAM alignment record's bitwise flag field (SAM §1.4).
type Flag uint16

const (
	FlagMultipleSegments       Flag = 0x1
	FlagProperlyAligned        Flag = 0x2
	FlagUnmapped               Flag = 0x4
	FlagNextUnmapped           Flag = 0x8
	FlagReverseComplemented    Flag = 0x10
	FlagNextReverseComplement  Flag = 0x20
	FlagFirstSegment           Flag = 0x40
	FlagLastSegment            Flag = 0x80
	FlagSecondaryAlignment     Flag = 0x100
	FlagFailedFilter           Flag = 0x200
	FlagDuplicate              Flag = 0x400
	FlagSupplementaryAlignment Flag = 0x800
)

// Has reports whether every bit set in want is also set in f.
func (f Flag) Has(want Flag) bool { return f&want == want }
