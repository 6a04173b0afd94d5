//go:build !linux

package memlimit

// Free is only implemented on Linux.
func Free() (int64, error) {
	return 0, ErrUnsupported
}
