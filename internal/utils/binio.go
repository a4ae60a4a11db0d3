package utils

import "encoding/binary"

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// WriterAt is a simplified interface for io.WriterAt.
type WriterAt interface {
	WriteAt(p []byte, off int64) (n int, err error)
}

// ReadUint32At reads a little-endian uint32 at the given offset.
func ReadUint32At(r ReaderAt, offset int64) (uint32, error) {
	buf := GetBuffer(4)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint64At reads a little-endian uint64 at the given offset.
func ReadUint64At(r ReaderAt, offset int64) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// BitMSB reports whether bit number `bit` of a bit array stored as
// little-endian 32-bit words is set, using MSB-first numbering within
// each word: bit 0 is the most significant bit of the first word, bit 31
// is the least significant bit of the first word, bit 32 is the most
// significant bit of the second word, and so on.
//
// This is the DPFS/IVFC selector-bitmap contract: callers never open-code
// the shift-and-mask themselves.
func BitMSB(words []byte, bit int) bool {
	wordIdx := bit >> 5
	word := binary.LittleEndian.Uint32(words[wordIdx*4 : wordIdx*4+4])
	shift := uint(31 - (bit % 32))
	return (word>>shift)&1 == 1
}

// SetBitMSB sets or clears bit number `bit` in place, using the same
// MSB-first-within-LE-word numbering as BitMSB.
func SetBitMSB(words []byte, bit int, value bool) {
	wordIdx := bit >> 5
	wordBytes := words[wordIdx*4 : wordIdx*4+4]
	word := binary.LittleEndian.Uint32(wordBytes)
	shift := uint(31 - (bit % 32))
	if value {
		word |= 1 << shift
	} else {
		word &^= 1 << shift
	}
	binary.LittleEndian.PutUint32(wordBytes, word)
}
