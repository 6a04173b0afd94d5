package sorter

import (
	"hash/fnv"

	"github.com/spf13/afero"
)

// FileStats describes the lines of one file.
type FileStats struct {
	Path  string `json:"path" yaml:"path"`
	Lines int64  `json:"lines" yaml:"lines"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
	// Sorted is false once any line is smaller than the one before it.
	Sorted bool `json:"sorted" yaml:"sorted"`
	// FirstDisorder is the 1-based number of the first out-of-order line,
	// or 0 when the file is sorted.
	FirstDisorder int64 `json:"first_disorder,omitempty" yaml:"first_disorder,omitempty"`
	// Fingerprint is an order-independent hash of the lines: two files hold
	// the same multiset of lines only if their fingerprints match.
	Fingerprint uint64 `json:"fingerprint" yaml:"fingerprint"`
}

// Inspect reads path once and reports its line count, ordering and
// fingerprint.
func Inspect(fs afero.Fs, path string) (FileStats, error) {
	f, err := fs.Open(path)
	if err != nil {
		return FileStats{}, ioErr("open", path, err)
	}
	defer f.Close()

	st := FileStats{Path: path, Sorted: true}
	lr := NewLineReader(f)
	h := fnv.New64a()
	var prev string
	for lr.Next() {
		line := lr.Line()
		st.Lines++
		if st.Lines > 1 && line < prev {
			if st.Sorted {
				st.FirstDisorder = st.Lines
			}
			st.Sorted = false
		}
		h.Reset()
		h.Write([]byte(line))
		st.Fingerprint += h.Sum64()
		prev = line
	}
	if err := lr.Err(); err != nil {
		return st, ioErr("read", path, err)
	}
	st.Bytes = lr.Bytes()
	return st, nil
}

// Verification compares a sort output with its input.
type Verification struct {
	Input  FileStats `json:"input" yaml:"input"`
	Output FileStats `json:"output" yaml:"output"`
}

// OK reports whether the output is sorted and holds exactly the input lines.
func (v Verification) OK() bool {
	return v.Output.Sorted && v.SameLines()
}

// SameLines reports whether input and output hold the same lines.
func (v Verification) SameLines() bool {
	return v.Input.Lines == v.Output.Lines && v.Input.Fingerprint == v.Output.Fingerprint
}

// Verify inspects input and output.
func Verify(fs afero.Fs, input, output string) (Verification, error) {
	in, err := Inspect(fs, input)
	if err != nil {
		return Verification{}, err
	}
	out, err := Inspect(fs, output)
	if err != nil {
		return Verification{Input: in}, err
	}
	return Verification{Input: in, Output: out}, nil
}
