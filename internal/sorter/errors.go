package sorter

import (
	"errors"
	"fmt"
)

// Configuration errors. They are returned before any chunk is written.
var (
	ErrInvalidCapacity    = errors.New("chunk capacity must be positive")
	ErrInvalidMemoryLimit = errors.New("memory limit must be positive")
	ErrInvalidLineSize    = errors.New("average line size must be positive")
	ErrNoInput            = errors.New("input path is empty")
	ErrNoOutput           = errors.New("output path is empty")
)

// IOError reports a failed file operation at any stage of a sort.
type IOError struct {
	Op   string // open, read, write, create, remove, rename, mkdir
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *IOError
	if errors.As(err, &existing) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// IsConfigError reports whether err is one of the configuration errors.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidMemoryLimit) ||
		errors.Is(err, ErrInvalidLineSize) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrNoOutput)
}
