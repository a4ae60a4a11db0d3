// Package ivfc recomputes and rewrites the integrity-verified hash tree
// above a DPFS-backed level-4 write, bottom-up from level 4 through the
// synthetic level 0 (the outer partition hash).
package ivfc

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/disacore/internal/container"
	"github.com/scigolib/disacore/internal/dpfs"
	"github.com/scigolib/disacore/internal/utils"
)

// ReadWriter is the minimal capability FixLevel needs against the open
// container handle: both reading source blocks and writing hashes back.
type ReadWriter interface {
	io.ReaderAt
	io.WriterAt
}

// FixLevel recomputes every 32-byte SHA-256 hash covering the half-open
// range [offset, offset+size) at the given IVFC data level (1..4), writing
// each into the parent level, or runs the synthetic level 0 (the outer
// partition hash) when level is 0, ignoring offset/size.
//
// nextOffset/nextSize describe the corresponding range one level up, to be
// threaded into the next FixLevel call by FixChain; they are meaningless
// for level 0 (there is no level above it).
func FixLevel(rw ReadWriter, desc *container.Descriptor, level int, offset, size uint64) (nextOffset, nextSize uint64, err error) {
	if level == 0 {
		return 0, 0, fixPartitionHash(rw, desc)
	}
	if level < 1 || level > 4 {
		return 0, 0, utils.WrapError("ivfc level", fmt.Errorf("level %d out of range", level))
	}

	lvl := desc.IVFC[level-1]
	block := uint64(1) << lvl.Log
	alignedOffset := offset / block * block
	alignedSize := utils.CeilDiv((offset-alignedOffset)+size, block) * block
	numBlocks := alignedSize / block

	nextOffset = alignedOffset / block * 32
	nextSize = numBlocks * 32

	buf := utils.GetBuffer(int(block))
	defer utils.ReleaseBuffer(buf)

	for i := uint64(0); i < numBlocks; i++ {
		blockStart := alignedOffset + i*block
		for j := range buf {
			buf[j] = 0
		}

		if err := readSourceBlock(rw, desc, level, blockStart, block, lvl.Size, buf); err != nil {
			return 0, 0, err
		}

		sum := sha256.Sum256(buf)

		if err := writeParentHash(rw, desc, level, blockStart/block, sum[:]); err != nil {
			return 0, 0, err
		}
	}

	return nextOffset, nextSize, nil
}

// FixChain runs FixLevel for levels 4, 3, 2, 1 in order, threading each
// call's next offset/size into the next, then finishes with level 0 (the
// outer partition hash). Any failure aborts the chain immediately:
// hashes must be written bottom-up, so a partial chain is never safe to
// continue past its failure point.
func FixChain(rw ReadWriter, desc *container.Descriptor, offset, size uint64) error {
	off, sz := offset, size
	for level := 4; level >= 1; level-- {
		nOff, nSz, err := FixLevel(rw, desc, level, off, sz)
		if err != nil {
			return err
		}
		off, sz = nOff, nSz
	}
	_, _, err := FixLevel(rw, desc, 0, 0, 0)
	return err
}

func readSourceBlock(rw ReadWriter, desc *container.Descriptor, level int, blockStart, block, srcSize uint64, buf []byte) error {
	n := block
	switch {
	case blockStart >= srcSize:
		n = 0
	case blockStart+block > srcSize:
		n = srcSize - blockStart
	}
	if n == 0 {
		return nil // buf is already zero-filled by the caller
	}

	if level == 4 && desc.IVFCUseExtLvl4 {
		if _, err := rw.ReadAt(buf[:n], int64(desc.Level4AbsoluteOffset()+blockStart)); err != nil {
			return utils.WrapError("reading external level 4 block", err)
		}
		return nil
	}

	lvlOff := desc.IVFC[level-1].Offset
	if got := dpfs.ReadLevel3(rw, desc, lvlOff+blockStart, n, buf[:n]); got != n {
		return utils.WrapError("reading level source block", errors.New("short dpfs read"))
	}
	return nil
}

func writeParentHash(rw ReadWriter, desc *container.Descriptor, level int, blockIdx uint64, hash []byte) error {
	if level == 1 {
		off := int64(desc.OffsetDIFI + desc.OffsetMasterHash + blockIdx*32)
		if _, err := rw.WriteAt(hash, off); err != nil {
			return utils.WrapError("writing master hash", err)
		}
		return nil
	}

	parentOff := desc.IVFC[level-2].Offset + blockIdx*32
	if got := dpfs.WriteLevel3(rw, desc, parentOff, 32, hash); got != 32 {
		return utils.WrapError("writing parent level hash", errors.New("short dpfs write"))
	}
	return nil
}

func fixPartitionHash(rw ReadWriter, desc *container.Descriptor) error {
	buf := utils.GetBuffer(int(desc.SizeTable))
	defer utils.ReleaseBuffer(buf)

	if _, err := rw.ReadAt(buf, int64(desc.OffsetTable)); err != nil {
		return utils.WrapError("reading active table", err)
	}
	sum := sha256.Sum256(buf)
	if _, err := rw.WriteAt(sum[:], int64(desc.OffsetPartitionHash)); err != nil {
		return utils.WrapError("writing partition hash", err)
	}
	return nil
}
