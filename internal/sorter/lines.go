package sorter

import (
	"bufio"
	"errors"
	"io"
)

const readBufSize = 64 * 1024

// LineReader reads '\n'-terminated lines of any length. A final line without
// a terminator is still returned. The terminator is never part of the line.
type LineReader struct {
	r     *bufio.Reader
	line  string
	err   error
	lines int64
	bytes int64
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, readBufSize)}
}

// Next advances to the next line. It returns false at end of input or on
// error; Err distinguishes the two.
func (lr *LineReader) Next() bool {
	if lr.err != nil {
		return false
	}
	b, err := lr.r.ReadBytes('\n')
	lr.bytes += int64(len(b))
	if err != nil {
		if !errors.Is(err, io.EOF) {
			lr.err = err
			return false
		}
		lr.err = io.EOF
		if len(b) == 0 {
			return false
		}
	} else {
		b = b[:len(b)-1]
	}
	lr.line = string(b)
	lr.lines++
	return true
}

// Line returns the current line.
func (lr *LineReader) Line() string { return lr.line }

// Err returns the first non-EOF error.
func (lr *LineReader) Err() error {
	if errors.Is(lr.err, io.EOF) {
		return nil
	}
	return lr.err
}

// Lines returns the number of lines read so far.
func (lr *LineReader) Lines() int64 { return lr.lines }

// Bytes returns the number of input bytes consumed, terminators included.
func (lr *LineReader) Bytes() int64 { return lr.bytes }
