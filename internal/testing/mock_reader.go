// Package testing provides test utilities shared across the container,
// dpfs, and ivfc packages.
package testing

import "errors"

// MockReaderAt is a mock implementation of io.ReaderAt for testing.
type MockReaderAt struct {
	data []byte
}

// NewMockReaderAt creates a new mock reader with the given data.
func NewMockReaderAt(data []byte) *MockReaderAt {
	return &MockReaderAt{data: data}
}

// ReadAt implements io.ReaderAt interface for the mock reader.
func (m *MockReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}

	if off >= int64(len(m.data)) {
		return 0, errors.New("offset beyond EOF")
	}

	n = copy(p, m.data[off:])
	if n < len(p) {
		err = errors.New("short read")
	}
	return
}

// CountingFile is an in-memory random-access file that counts how many
// ReadAt/WriteAt calls land within each registered named region. It exists
// to test DPFS run-merging (one physical I/O per maximal same-selector
// run, never more): register the level-3 copy-0 and copy-1 regions, then
// assert the call count after a ReadLevel3/WriteLevel3 matches the number
// of bitmap runs expected.
type CountingFile struct {
	data    []byte
	regions map[string][2]int64 // name -> [start, end)
	Calls   map[string]int
}

// NewCountingFile creates a counting mock file backed by data.
func NewCountingFile(data []byte) *CountingFile {
	return &CountingFile{
		data:    data,
		regions: make(map[string][2]int64),
		Calls:   make(map[string]int),
	}
}

// Region registers a named, non-overlapping byte range used to attribute
// ReadAt/WriteAt calls to "copy 0" or "copy 1" in tests.
func (c *CountingFile) Region(name string, start, end int64) {
	c.regions[name] = [2]int64{start, end}
}

func (c *CountingFile) countCall(off int64, n int64) {
	for name, r := range c.regions {
		if off >= r[0] && off+n <= r[1] {
			c.Calls[name]++
			return
		}
	}
	c.Calls["<unregistered>"]++
}

// ReadAt implements io.ReaderAt.
func (c *CountingFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(c.data)) {
		return 0, errors.New("offset beyond EOF")
	}
	n := copy(p, c.data[off:])
	c.countCall(off, int64(n))
	if n < len(p) {
		return n, errors.New("short read")
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (c *CountingFile) WriteAt(p []byte, off int64) (int, error) {
	need := off + int64(len(p))
	if need > int64(len(c.data)) {
		grown := make([]byte, need)
		copy(grown, c.data)
		c.data = grown
	}
	n := copy(c.data[off:], p)
	c.countCall(off, int64(n))
	return n, nil
}

// Bytes returns the current backing buffer.
func (c *CountingFile) Bytes() []byte {
	return c.data
}
