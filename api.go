package disacore

import (
	"os"

	"github.com/scigolib/disacore/internal/container"
	"github.com/scigolib/disacore/internal/dpfs"
	"github.com/scigolib/disacore/internal/ivfc"
	"github.com/scigolib/disacore/internal/utils"
)

// GetRWInfo parses path's descriptor without opening it for sustained
// use. wantPartitionB requests partition B on a two-partition DISA; it
// is always invalid for DIFF.
func GetRWInfo(path string, wantPartitionB bool) (*container.Descriptor, error) {
	return container.ParseFile(path, wantPartitionB)
}

// BuildDPFSLevel2Cache materializes the effective DPFS level-2 bitmap for
// desc into cacheBuf and installs it.
func BuildDPFSLevel2Cache(path string, desc *container.Descriptor, cacheBuf []byte) error {
	f, err := os.Open(path) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	return dpfs.BuildLevel2Cache(f, desc, cacheBuf)
}

// ReadIVFCLevel4 reads size bytes at offset from desc's level-4 payload.
func ReadIVFCLevel4(path string, desc *container.Descriptor, offset int64, size int, out []byte) (int, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return 0, utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	return readLevel4(f, desc, offset, size, out)
}

// WriteIVFCLevel4 writes size bytes at offset into desc's level-4
// payload, then fixes every IVFC hash level bottom-up plus the outer
// partition hash.
func WriteIVFCLevel4(path string, desc *container.Descriptor, offset int64, size int, in []byte) (int, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return 0, utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	n, err := writeLevel4(f, desc, offset, size, in)
	if err != nil || n == 0 {
		return n, err
	}
	if err := ivfc.FixChain(f, desc, uint64(offset), uint64(n)); err != nil {
		return 0, err
	}
	return n, nil
}

// FixPartitionHash recomputes and rewrites only the outer partition hash
// for desc, without touching any IVFC level. Exposed so mount-time
// flushers can call it after a batch of writes without invoking the full
// chain.
func FixPartitionHash(path string, desc *container.Descriptor) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	_, _, err = ivfc.FixLevel(f, desc, 0, 0, 0)
	return err
}

// ReadLevel4 reads size bytes at offset from partition A's level-4
// payload, transparently parsing a descriptor and building a throwaway
// level-2 cache for the duration of the call.
func ReadLevel4(path string, offset int64, size int, out []byte) (int, error) {
	desc, err := container.ParseFile(path, false)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return 0, utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	cacheBuf := make([]byte, dpfs.MinCacheSize(desc))
	if err := dpfs.BuildLevel2Cache(f, desc, cacheBuf); err != nil {
		return 0, err
	}

	return readLevel4(f, desc, offset, size, out)
}

// WriteLevel4 writes size bytes at offset into partition A's level-4
// payload, transparently parsing a descriptor and building a throwaway
// level-2 cache, then fixes the full hash chain.
func WriteLevel4(path string, offset int64, size int, in []byte) (int, error) {
	desc, err := container.ParseFile(path, false)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return 0, utils.WrapError("opening container", err)
	}
	defer func() { _ = f.Close() }()

	cacheBuf := make([]byte, dpfs.MinCacheSize(desc))
	if err := dpfs.BuildLevel2Cache(f, desc, cacheBuf); err != nil {
		return 0, err
	}

	n, err := writeLevel4(f, desc, offset, size, in)
	if err != nil || n == 0 {
		return n, err
	}
	if err := ivfc.FixChain(f, desc, uint64(offset), uint64(n)); err != nil {
		return 0, err
	}
	return n, nil
}
