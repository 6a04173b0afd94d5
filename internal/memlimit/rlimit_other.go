//go:build !(linux || darwin)

package memlimit

func setAddressSpace(uint64) error {
	return ErrUnsupported
}
