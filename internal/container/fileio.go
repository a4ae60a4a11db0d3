package container

import "os"

// openReadOnly opens path for reading only, returning a close function
// that is always safe to defer: the handle is acquired at the top of a
// read operation and released on every exit path.
func openReadOnly(path string) (*os.File, func(), error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided container path is intentional
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { _ = f.Close() }, nil
}

func fileSizeOf(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
