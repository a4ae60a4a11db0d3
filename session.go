// Package disacore reads and writes DISA/DIFF save-data and extdata
// containers: the outer descriptor tables, the DPFS dual-copy atomic
// update layer, and the IVFC Merkle hash-tree integrity layer nested
// inside them.
package disacore

import (
	"io"
	"os"

	"github.com/scigolib/disacore/internal/container"
	"github.com/scigolib/disacore/internal/dpfs"
	"github.com/scigolib/disacore/internal/ivfc"
	"github.com/scigolib/disacore/internal/utils"
)

// readWriterAt is the capability Session needs from its open file handle.
type readWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Session is an open DISA/DIFF container: a live file handle, its parsed
// descriptor, and the materialized DPFS level-2 cache, scoped for callers
// who want to batch several level-4 operations without reparsing the
// descriptor or rebuilding the cache on every call. The descriptor is
// immutable after open; the cache is exclusively owned by the Session and
// borrowed read-only during I/O.
type Session struct {
	f    *os.File
	desc *container.Descriptor
}

// OpenSession opens path read-write, parses its descriptor, and builds
// the DPFS level-2 cache, returning a Session ready for repeated level-4
// reads and writes.
func OpenSession(path string, wantPartitionB bool) (*Session, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, utils.WrapError("opening container", err)
	}

	size, err := statSize(f)
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("stat container", err)
	}

	desc, err := container.Parse(f, size, wantPartitionB)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	cacheBuf := make([]byte, dpfs.MinCacheSize(desc))
	if err := dpfs.BuildLevel2Cache(f, desc, cacheBuf); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Session{f: f, desc: desc}, nil
}

// Close releases the underlying OS file handle.
func (s *Session) Close() error {
	return s.f.Close()
}

// Descriptor returns the immutable parsed descriptor.
func (s *Session) Descriptor() *container.Descriptor { return s.desc }

// Cache returns the DPFS level-2 cache buffer. Callers must treat it as
// read-only.
func (s *Session) Cache() []byte { return s.desc.Cache() }

// ReadLevel4 reads size bytes at offset from the level-4 payload. Per the
// read-clamps/write-rejects asymmetry, a request extending past the
// descriptor's declared level-4 size is silently clamped to what's
// actually available rather than rejected.
func (s *Session) ReadLevel4(offset int64, size int, out []byte) (int, error) {
	return readLevel4(s.f, s.desc, offset, size, out)
}

// WriteLevel4NoFix writes size bytes at offset into the level-4 payload
// without touching any IVFC hash level. Pair with a later FixChain or
// FixPartitionHash call once a batch of writes is complete; mount-time
// flushers defer hash fixing this way for writes against a mounted image.
func (s *Session) WriteLevel4NoFix(offset int64, size int, in []byte) (int, error) {
	return writeLevel4(s.f, s.desc, offset, size, in)
}

// WriteLevel4AndFix writes size bytes at offset into level 4, then fixes
// every IVFC hash level bottom-up (4, 3, 2, 1) plus the outer partition
// hash. This is the default, always-consistent write path.
func (s *Session) WriteLevel4AndFix(offset int64, size int, in []byte) (int, error) {
	n, err := writeLevel4(s.f, s.desc, offset, size, in)
	if err != nil || n == 0 {
		return n, err
	}
	if err := ivfc.FixChain(s.f, s.desc, uint64(offset), uint64(n)); err != nil {
		return 0, err
	}
	return n, nil
}

// FixChain fixes every IVFC hash level bottom-up for the given level-4
// range, then the outer partition hash.
func (s *Session) FixChain(offset int64, size int) error {
	return ivfc.FixChain(s.f, s.desc, uint64(offset), uint64(size))
}

// FixPartitionHash recomputes and rewrites only the outer partition hash
// over the active descriptor table, without touching any IVFC level, for
// mount-time flushers that have already fixed IVFC levels themselves
// after a batch of WriteLevel4NoFix calls and only need the final stamp.
func (s *Session) FixPartitionHash() error {
	_, _, err := ivfc.FixLevel(s.f, s.desc, 0, 0, 0)
	return err
}

func statSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
