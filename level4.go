package disacore

import (
	"errors"

	"github.com/scigolib/disacore/internal/container"
	"github.com/scigolib/disacore/internal/dpfs"
	"github.com/scigolib/disacore/internal/utils"
)

// ErrLevel4OutOfRange is returned by a write that would extend past the
// descriptor's declared level-4 size. Reads never return it: a read past
// the declared size silently clamps instead. Level 4 is never extended.
var ErrLevel4OutOfRange = errors.New("disacore: write exceeds level-4 bounds")

func readLevel4(ra readWriterAt, desc *container.Descriptor, offset int64, size int, out []byte) (int, error) {
	if offset < 0 || size < 0 {
		return 0, utils.WrapError("reading level 4", errors.New("negative offset or size"))
	}

	lvlSize := int64(desc.IVFC[3].Size)
	avail := lvlSize - offset
	if avail <= 0 {
		return 0, nil
	}
	if int64(size) > avail {
		size = int(avail)
	}
	out = out[:size]
	if size == 0 {
		return 0, nil
	}

	if desc.IVFCUseExtLvl4 {
		n, err := ra.ReadAt(out, int64(desc.Level4AbsoluteOffset())+offset)
		if err != nil {
			return 0, utils.WrapError("reading external level 4", err)
		}
		return n, nil
	}

	n := dpfs.ReadLevel3(ra, desc, desc.Level4LogicalOffset()+uint64(offset), uint64(size), out)
	if n == 0 {
		return 0, utils.WrapError("reading level 4", errors.New("dpfs read failed"))
	}
	return int(n), nil
}

func writeLevel4(wa readWriterAt, desc *container.Descriptor, offset int64, size int, in []byte) (int, error) {
	if offset < 0 || size < 0 {
		return 0, utils.WrapError("writing level 4", errors.New("negative offset or size"))
	}

	lvlSize := int64(desc.IVFC[3].Size)
	if offset+int64(size) > lvlSize {
		return 0, utils.WrapError("writing level 4", ErrLevel4OutOfRange)
	}
	in = in[:size]
	if size == 0 {
		return 0, nil
	}

	if desc.IVFCUseExtLvl4 {
		n, err := wa.WriteAt(in, int64(desc.Level4AbsoluteOffset())+offset)
		if err != nil {
			return 0, utils.WrapError("writing external level 4", err)
		}
		return n, nil
	}

	n := dpfs.WriteLevel3(wa, desc, desc.Level4LogicalOffset()+uint64(offset), uint64(size), in)
	if n == 0 {
		return 0, utils.WrapError("writing level 4", errors.New("dpfs write failed"))
	}
	return int(n), nil
}
