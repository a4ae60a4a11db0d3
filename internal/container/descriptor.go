// Package container parses the outer DISA/DIFF container header and the
// nested DIFI/IVFC/DPFS descriptors into a flat, read-only Descriptor used
// by every other layer (dpfs, ivfc) of this module.
package container

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/scigolib/disacore/internal/utils"
)

// Container and descriptor magics. Each is the 4-byte ASCII tag followed
// by a little-endian uint32 format version, exactly as the host firmware
// writes and verifies them.
const (
	DisaMagic = "DISA\x00\x00\x04\x00"
	DiffMagic = "DIFF\x00\x00\x03\x00"
	DifiMagic = "DIFI\x00\x00\x01\x00"
	IvfcMagic = "IVFC\x00\x00\x02\x00"
	DpfsMagic = "DPFS\x00\x00\x01\x00"
)

// Fixed layout constants from the DISA/DIFF/DIFI formats.
const (
	headerBlockOffset = 0x100
	headerBlockSize   = 0x100

	difiReadSize  = 0x120 // covers DifiHeader+IvfcDescriptor+DpfsDescriptor
	difiHeaderLen = 0x44
	ivfcDescLen   = 0x78
	dpfsDescLen   = 0x50
	hashOffset    = 0x10C
	minHashSize   = 0x20

	disaPartitionHashOffset = 0x16C
	diffPartitionHashOffset = 0x134
)

// ErrInvalidContainer is the single opaque parse failure: the caller
// only needs to distinguish success from failure. Use errors.As
// against *utils.CoreError on the returned error for a diagnostic Context.
var ErrInvalidContainer = errors.New("invalid or unsupported container")

// DPFSLevel describes one of the three DPFS levels. Offset and Size
// describe a single physical copy; every level exists in two physical
// copies laid out back to back (copy 1 immediately follows copy 0 at
// Offset+Size). Level 1's copy is selected wholesale (via
// Descriptor.DPFSLvl1Selector); level-2 and level-3 copies are selected
// per block, by the active level-1 bits and by the level-2 cache.
type DPFSLevel struct {
	Offset uint64
	Size   uint64
	Log    uint8 // binary log of block size; meaningful for levels 2 and 3 only
}

// IVFCLevel describes one of the four IVFC data levels. Offset and Size
// are in the DPFS level-3 logical coordinate space for levels 1-3 always,
// and for level 4 unless Descriptor.IVFCUseExtLvl4 is set.
type IVFCLevel struct {
	Offset uint64
	Size   uint64
	Log    uint8
}

// Descriptor is the flat, immutable record produced by Parse. Every other
// component treats it as read-only, except for the level-2 cache slot
// which dpfs.BuildLevel2Cache installs once via SetCache.
type Descriptor struct {
	OffsetTable uint64
	SizeTable   uint64

	OffsetDIFI          uint64
	OffsetPartitionHash uint64
	OffsetPartition     uint64
	SizePartition       uint64

	DPFS             [3]DPFSLevel // index k-1 for level k (1..3)
	DPFSLvl1Selector uint8

	IVFC             [4]IVFCLevel // index k-1 for level k (1..4)
	OffsetMasterHash uint64       // relative to OffsetDIFI
	IVFCUseExtLvl4   bool
	ExtLvl4Offset    uint64 // raw ivfc_offset_extlvl4; meaningful only if IVFCUseExtLvl4

	cache        []byte
	difiSizeHash uint64 // DIFI's size_hash, carried only to cross-validate against IVFC's
	ivfcSizeHash uint64 // IVFC's size_hash, carried only to cross-validate against DIFI's
}

// Cache returns the installed DPFS level-2 cache, or nil if none has been
// built yet.
func (d *Descriptor) Cache() []byte { return d.cache }

// SetCache installs the effective DPFS level-2 cache. Called exactly once,
// by dpfs.BuildLevel2Cache, after which the Descriptor is immutable again.
func (d *Descriptor) SetCache(buf []byte) { d.cache = buf }

// Level4LogicalOffset returns the level-4 base offset in the DPFS level-3
// logical coordinate space. Only valid when !IVFCUseExtLvl4.
func (d *Descriptor) Level4LogicalOffset() uint64 { return d.IVFC[3].Offset }

// Level4AbsoluteOffset returns the level-4 base offset as an absolute file
// offset. Only valid when IVFCUseExtLvl4.
func (d *Descriptor) Level4AbsoluteOffset() uint64 { return d.OffsetPartition + d.ExtLvl4Offset }

// DPFSLvl1ActiveOffset returns the absolute file offset of the currently
// selected physical copy of DPFS level 1.
func (d *Descriptor) DPFSLvl1ActiveOffset() uint64 {
	lvl1 := d.DPFS[0]
	if d.DPFSLvl1Selector != 0 {
		return lvl1.Offset + lvl1.Size
	}
	return lvl1.Offset
}

// DPFSLvl2CopyOffset returns the absolute file offset of DPFS level-2
// copy 0 or copy 1.
func (d *Descriptor) DPFSLvl2CopyOffset(copy int) uint64 {
	lvl2 := d.DPFS[1]
	if copy == 0 {
		return lvl2.Offset
	}
	return lvl2.Offset + lvl2.Size
}

// DPFSLvl3CopyOffset returns the absolute file offset of DPFS level-3
// copy 0 or copy 1.
func (d *Descriptor) DPFSLvl3CopyOffset(copy int) uint64 {
	lvl3 := d.DPFS[2]
	if copy == 0 {
		return lvl3.Offset
	}
	return lvl3.Offset + lvl3.Size
}

// Parse reads and validates a DISA/DIFF container from ra (a file of the
// given size) and returns a flat Descriptor. Any structural violation
// collapses to ErrInvalidContainer.
func Parse(ra io.ReaderAt, fileSize int64, wantPartitionB bool) (*Descriptor, error) {
	header := utils.GetBuffer(headerBlockSize)
	defer utils.ReleaseBuffer(header)

	if _, err := ra.ReadAt(header, headerBlockOffset); err != nil {
		return nil, wrapInvalid("reading outer header", err)
	}

	d := &Descriptor{}

	switch {
	case string(header[:8]) == DisaMagic:
		if err := parseDisaHeader(header, d, wantPartitionB); err != nil {
			return nil, err
		}
	case string(header[:8]) == DiffMagic:
		if wantPartitionB {
			return nil, wrapInvalid("partition B", errors.New("DIFF has no partition B"))
		}
		parseDiffHeader(header, d)
	default:
		return nil, wrapInvalid("outer magic", errors.New("neither DISA nor DIFF"))
	}

	if d.OffsetDIFI == 0 ||
		addOverflows(d.OffsetDIFI, difiReadSize, fileSize) ||
		addOverflows(d.OffsetPartition, d.SizePartition, fileSize) {
		return nil, wrapInvalid("partition bounds", errors.New("out of range"))
	}

	difi := utils.GetBuffer(difiReadSize)
	defer utils.ReleaseBuffer(difi)

	if _, err := ra.ReadAt(difi, int64(d.OffsetDIFI)); err != nil {
		return nil, wrapInvalid("reading DIFI block", err)
	}

	if err := parseDifi(difi, d); err != nil {
		return nil, err
	}
	if err := parseIvfc(difi[difiHeaderLen:difiHeaderLen+ivfcDescLen], d); err != nil {
		return nil, err
	}
	if err := parseDpfs(difi[difiHeaderLen+ivfcDescLen:difiHeaderLen+ivfcDescLen+dpfsDescLen], d); err != nil {
		return nil, err
	}
	if err := crossValidate(d, fileSize); err != nil {
		return nil, err
	}

	return d, nil
}

// ParseFile opens path read-only, parses it, and closes the handle
// before returning.
func ParseFile(path string, wantPartitionB bool) (*Descriptor, error) {
	f, closeFn, err := openReadOnly(path)
	if err != nil {
		return nil, wrapInvalid("opening container", err)
	}
	defer closeFn()

	size, err := fileSizeOf(f)
	if err != nil {
		return nil, wrapInvalid("stat container", err)
	}

	return Parse(f, size, wantPartitionB)
}

func parseDisaHeader(header []byte, d *Descriptor, wantPartitionB bool) error {
	nPartitions := binary.LittleEndian.Uint32(header[8:12])
	offsetTable1 := binary.LittleEndian.Uint64(header[16:24])
	offsetTable0 := binary.LittleEndian.Uint64(header[24:32])
	sizeTable := binary.LittleEndian.Uint64(header[32:40])
	offsetDescA := binary.LittleEndian.Uint64(header[40:48])
	offsetDescB := binary.LittleEndian.Uint64(header[56:64])
	offsetPartitionA := binary.LittleEndian.Uint64(header[72:80])
	sizePartitionA := binary.LittleEndian.Uint64(header[80:88])
	offsetPartitionB := binary.LittleEndian.Uint64(header[88:96])
	sizePartitionB := binary.LittleEndian.Uint64(header[96:104])
	activeTable := header[104]

	d.OffsetTable = offsetTable0
	if activeTable != 0 {
		d.OffsetTable = offsetTable1
	}
	d.SizeTable = sizeTable
	d.OffsetDIFI = d.OffsetTable
	d.OffsetPartitionHash = disaPartitionHashOffset

	if !wantPartitionB {
		d.OffsetPartition = offsetPartitionA
		d.SizePartition = sizePartitionA
		d.OffsetDIFI += offsetDescA
		return nil
	}

	if nPartitions != 2 {
		return wrapInvalid("partition count", errors.New("partition B requested on single-partition DISA"))
	}
	d.OffsetPartition = offsetPartitionB
	d.SizePartition = sizePartitionB
	d.OffsetDIFI += offsetDescB
	return nil
}

func parseDiffHeader(header []byte, d *Descriptor) {
	offsetTable1 := binary.LittleEndian.Uint64(header[8:16])
	offsetTable0 := binary.LittleEndian.Uint64(header[16:24])
	sizeTable := binary.LittleEndian.Uint64(header[24:32])
	offsetPartition := binary.LittleEndian.Uint64(header[32:40])
	sizePartition := binary.LittleEndian.Uint64(header[40:48])
	activeTable := binary.LittleEndian.Uint32(header[48:52])

	d.OffsetPartition = offsetPartition
	d.SizePartition = sizePartition
	d.OffsetTable = offsetTable0
	if activeTable != 0 {
		d.OffsetTable = offsetTable1
	}
	d.SizeTable = sizeTable
	d.OffsetDIFI = d.OffsetTable
	d.OffsetPartitionHash = diffPartitionHashOffset
}

func parseDifi(difi []byte, d *Descriptor) error {
	if string(difi[:8]) != DifiMagic {
		return wrapInvalid("DIFI magic", errors.New("bad magic"))
	}

	offsetIvfc := binary.LittleEndian.Uint64(difi[8:16])
	sizeIvfc := binary.LittleEndian.Uint64(difi[16:24])
	offsetDpfs := binary.LittleEndian.Uint64(difi[24:32])
	sizeDpfs := binary.LittleEndian.Uint64(difi[32:40])
	offsetHash := binary.LittleEndian.Uint64(difi[40:48])
	sizeHash := binary.LittleEndian.Uint64(difi[48:56])
	useExt := difi[56]
	selector := difi[57]
	extOffset := binary.LittleEndian.Uint64(difi[60:68])

	if offsetIvfc != difiHeaderLen || sizeIvfc != ivfcDescLen ||
		offsetDpfs != offsetIvfc+sizeIvfc || sizeDpfs != dpfsDescLen ||
		offsetHash != offsetDpfs+sizeDpfs || sizeHash < minHashSize {
		return wrapInvalid("DIFI sub-offsets", errors.New("not contiguous/sized as required"))
	}

	d.DPFSLvl1Selector = selector
	d.IVFCUseExtLvl4 = useExt != 0
	d.ExtLvl4Offset = extOffset
	d.OffsetMasterHash = offsetHash
	d.difiSizeHash = sizeHash
	return nil
}

func parseIvfc(ivfc []byte, d *Descriptor) error {
	if string(ivfc[:8]) != IvfcMagic {
		return wrapInvalid("IVFC magic", errors.New("bad magic"))
	}
	sizeHash := binary.LittleEndian.Uint64(ivfc[8:16])

	readLevel := func(base int, is64Log bool) IVFCLevel {
		off := binary.LittleEndian.Uint64(ivfc[base : base+8])
		size := binary.LittleEndian.Uint64(ivfc[base+8 : base+16])
		var log uint64
		if is64Log {
			log = binary.LittleEndian.Uint64(ivfc[base+16 : base+24])
		} else {
			log = uint64(binary.LittleEndian.Uint32(ivfc[base+16 : base+20]))
		}
		return IVFCLevel{Offset: off, Size: size, Log: uint8(log)}
	}

	d.IVFC[0] = readLevel(16, false)
	d.IVFC[1] = readLevel(40, false)
	d.IVFC[2] = readLevel(64, false)
	d.IVFC[3] = readLevel(88, true) // log_lvl4 is stored as u64, unlike levels 1-3

	sizeIvfcSelf := binary.LittleEndian.Uint64(ivfc[112:120])

	if sizeIvfcSelf != ivfcDescLen {
		return wrapInvalid("IVFC self-size", errors.New("unexpected IVFC descriptor size"))
	}

	if d.IVFC[0].Offset+d.IVFC[0].Size > d.IVFC[1].Offset ||
		d.IVFC[1].Offset+d.IVFC[1].Size > d.IVFC[2].Offset {
		return wrapInvalid("IVFC level ordering", errors.New("levels 1-3 overlap or misordered"))
	}

	d.ivfcSizeHash = sizeHash
	return nil
}

func parseDpfs(dpfs []byte, d *Descriptor) error {
	if string(dpfs[:8]) != DpfsMagic {
		return wrapInvalid("DPFS magic", errors.New("bad magic"))
	}

	readLevel := func(base int) DPFSLevel {
		off := binary.LittleEndian.Uint64(dpfs[base : base+8])
		size := binary.LittleEndian.Uint64(dpfs[base+8 : base+16])
		log := binary.LittleEndian.Uint32(dpfs[base+16 : base+20])
		return DPFSLevel{Offset: off, Size: size, Log: uint8(log)}
	}

	lvl1 := readLevel(8)
	lvl2 := readLevel(32)
	lvl3 := readLevel(56)

	if lvl1.Offset+lvl1.Size > lvl2.Offset ||
		lvl2.Offset+lvl2.Size > lvl3.Offset ||
		lvl3.Offset+lvl3.Size > d.SizePartition ||
		lvl2.Log < 2 || lvl2.Log > lvl3.Log ||
		lvl1.Size == 0 || lvl2.Size == 0 || lvl3.Size == 0 {
		return wrapInvalid("DPFS levels", errors.New("overlap, misorder, or invalid log sizes"))
	}

	base := d.OffsetPartition
	d.DPFS[0] = DPFSLevel{Offset: base + lvl1.Offset, Size: lvl1.Size, Log: lvl1.Log}
	d.DPFS[1] = DPFSLevel{Offset: base + lvl2.Offset, Size: lvl2.Size, Log: lvl2.Log}
	d.DPFS[2] = DPFSLevel{Offset: base + lvl3.Offset, Size: lvl3.Size, Log: lvl3.Log}
	return nil
}

func crossValidate(d *Descriptor, fileSize int64) error {
	if d.ivfcSizeHash != d.difiSizeHash {
		return wrapInvalid("hash size", errors.New("IVFC size_hash does not match DIFI size_hash"))
	}

	lvl3Size := d.DPFS[2].Size

	// IVFC levels 1-3 always live inside DPFS level 3, regardless of where
	// level 4 itself lands, so this must hold unconditionally rather than
	// only in the non-external-level-4 branch below.
	if d.IVFC[2].Offset+d.IVFC[2].Size > lvl3Size {
		return wrapInvalid("IVFC level 3 bounds", errors.New("not contained within DPFS level 3"))
	}

	if d.IVFCUseExtLvl4 {
		abs := d.Level4AbsoluteOffset()
		if addOverflows(abs, d.IVFC[3].Size, int64(d.OffsetPartition+d.SizePartition)) {
			return wrapInvalid("external level 4 bounds", errors.New("out of range"))
		}
	} else {
		if d.IVFC[2].Offset+d.IVFC[2].Size > d.IVFC[3].Offset ||
			d.IVFC[3].Offset+d.IVFC[3].Size > lvl3Size {
			return wrapInvalid("level 4 placement", errors.New("not contained within level 3"))
		}
	}

	if addOverflows(d.OffsetTable, d.SizeTable, fileSize) ||
		int64(d.OffsetPartitionHash)+32 > fileSize {
		return wrapInvalid("partition hash bounds", errors.New("out of range"))
	}

	return nil
}

func addOverflows(offset, size uint64, limit int64) bool {
	if limit < 0 {
		return true
	}
	end := offset + size
	if end < offset { // overflow
		return true
	}
	return int64(end) > limit
}

// wrapInvalid carries a diagnostic Context/Cause internally (via
// utils.CoreError) while still satisfying errors.Is(err, ErrInvalidContainer)
// at the public boundary, per the ambient-stack error-opacity rule.
func wrapInvalid(context string, cause error) error {
	return utils.WrapError(context, &invalidContainerCause{cause: cause})
}

type invalidContainerCause struct{ cause error }

func (e *invalidContainerCause) Error() string { return e.cause.Error() }
func (e *invalidContainerCause) Unwrap() error { return ErrInvalidContainer }
func (e *invalidContainerCause) Is(target error) bool {
	return target == ErrInvalidContainer
}
