// Package dpfs implements the dual-partition file system layer: building
// the effective level-2 selector bitmap (BuildLevel2Cache) and servicing
// reads/writes through it (ReadLevel3/WriteLevel3).
package dpfs

import (
	"errors"
	"io"

	"github.com/scigolib/disacore/internal/container"
	"github.com/scigolib/disacore/internal/utils"
)

// ErrCacheTooSmall is returned by BuildLevel2Cache when buf, or the
// descriptor's own level-2/level-1 regions, cannot hold the required
// number of selector bits.
var ErrCacheTooSmall = errors.New("dpfs: level-2 cache buffer too small")

// MinCacheSize returns the minimum level-2 cache buffer size for desc:
// enough bits to cover every level-3 block, rounded up to a whole 32-bit
// word.
func MinCacheSize(desc *container.Descriptor) uint64 {
	blockLvl3 := uint64(1) << desc.DPFS[2].Log
	minBits := utils.CeilDiv(desc.DPFS[2].Size, blockLvl3)
	return utils.CeilDiv(minBits, 32) * 4
}

// BuildLevel2Cache materializes the effective DPFS level-2 bitmap into buf:
// a copy of level-2 copy 0, with every block selected by a set bit in the
// active level-1 copy overwritten from level-2 copy 1. On success, buf is
// installed onto desc via SetCache.
func BuildLevel2Cache(ra io.ReaderAt, desc *container.Descriptor, buf []byte) error {
	minBytes := MinCacheSize(desc)

	if uint64(len(buf)) < minBytes {
		return utils.WrapError("cache buffer", ErrCacheTooSmall)
	}
	if minBytes > desc.DPFS[1].Size {
		return utils.WrapError("level-2 region", ErrCacheTooSmall)
	}
	if minBytes > desc.DPFS[0].Size<<(3+desc.DPFS[1].Log) {
		return utils.WrapError("level-1 addressing range", ErrCacheTooSmall)
	}

	lvl1Size := desc.DPFS[0].Size
	paddedLen := ((lvl1Size + 3) / 4) * 4
	if paddedLen < 4 {
		paddedLen = 4
	}
	lvl1 := utils.GetBuffer(int(paddedLen))
	defer utils.ReleaseBuffer(lvl1)
	for i := range lvl1 {
		lvl1[i] = 0
	}
	if _, err := ra.ReadAt(lvl1[:lvl1Size], int64(desc.DPFSLvl1ActiveOffset())); err != nil {
		return utils.WrapError("reading active level-1 copy", err)
	}

	if _, err := ra.ReadAt(buf[:minBytes], int64(desc.DPFSLvl2CopyOffset(0))); err != nil {
		return utils.WrapError("reading level-2 copy 0", err)
	}

	blockLvl2 := uint64(1) << desc.DPFS[1].Log
	lvl1BitsNeeded := utils.CeilDiv(minBytes, blockLvl2)
	lvl2Copy1Base := int64(desc.DPFSLvl2CopyOffset(1))

	for bit := uint64(0); bit < lvl1BitsNeeded; bit++ {
		if !utils.BitMSB(lvl1, int(bit)) {
			continue
		}
		blockOff := bit * blockLvl2
		blockEnd := blockOff + blockLvl2
		if blockEnd > minBytes {
			blockEnd = minBytes
		}
		if _, err := ra.ReadAt(buf[blockOff:blockEnd], lvl2Copy1Base+int64(blockOff)); err != nil {
			return utils.WrapError("reading level-2 copy 1 block", err)
		}
	}

	desc.SetCache(buf[:minBytes])
	return nil
}
