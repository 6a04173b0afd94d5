package sorter

import (
	"bufio"
	"container/heap"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
)

// mergeCheckEvery is how many emitted lines pass between context checks and
// progress reports during a merge.
const mergeCheckEvery = 100_000

// cursor is one open chunk positioned at its current head line.
type cursor struct {
	idx  int
	path string
	file afero.File
	lr   *LineReader
	head string
}

// cursorHeap orders cursors by head line, then by chunk index, so ties are
// broken consistently.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].head != h[j].head {
		return h[i].head < h[j].head
	}
	return h[i].idx < h[j].idx
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// MergeIterator yields the lines of several sorted chunk files in ascending
// order. It is forward-only and can be consumed once; stop early by calling
// Close.
type MergeIterator struct {
	h      cursorHeap
	line   string
	err    error
	closed bool
}

// NewMergeIterator opens every chunk in paths. If any chunk cannot be opened
// or read, the cursors already opened are closed and an *IOError is returned.
func NewMergeIterator(fs afero.Fs, paths []string) (*MergeIterator, error) {
	it := &MergeIterator{h: make(cursorHeap, 0, len(paths))}
	for i, p := range paths {
		f, err := fs.Open(p)
		if err != nil {
			it.Close()
			return nil, ioErr("open", p, err)
		}
		c := &cursor{idx: i, path: p, file: f, lr: NewLineReader(f)}
		if !c.lr.Next() {
			err := c.lr.Err()
			f.Close()
			if err != nil {
				it.Close()
				return nil, ioErr("read", p, err)
			}
			continue // empty chunk
		}
		c.head = c.lr.Line()
		it.h = append(it.h, c)
	}
	heap.Init(&it.h)
	return it, nil
}

// Next advances to the smallest line not yet returned.
func (it *MergeIterator) Next() bool {
	if it.closed || it.err != nil || len(it.h) == 0 {
		return false
	}
	c := it.h[0]
	it.line = c.head
	if c.lr.Next() {
		c.head = c.lr.Line()
		heap.Fix(&it.h, 0)
		return true
	}
	heap.Pop(&it.h)
	cerr := c.file.Close()
	if err := c.lr.Err(); err != nil {
		it.err = ioErr("read", c.path, err)
		return false
	}
	if cerr != nil {
		it.err = ioErr("close", c.path, cerr)
		return false
	}
	return true
}

// Line returns the line produced by the last successful Next.
func (it *MergeIterator) Line() string { return it.line }

// Err returns the first error met while merging.
func (it *MergeIterator) Err() error { return it.err }

// Close releases every open cursor. It is safe to call more than once.
func (it *MergeIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var errs []error
	for _, c := range it.h {
		if err := c.file.Close(); err != nil {
			errs = append(errs, ioErr("close", c.path, err))
		}
	}
	it.h = nil
	return errors.Join(errs...)
}

// MergeStats summarizes a completed merge.
type MergeStats struct {
	Chunks   int           `json:"chunks"`
	Lines    int64         `json:"lines"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Merger k-way merges sorted chunk files into one writer.
type Merger struct {
	fs       afero.Fs
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time
	sink     string
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithMergeProgress reports a snapshot at the start and end of the merge and
// periodically in between.
func WithMergeProgress(fn ProgressFunc) MergerOption {
	return func(m *Merger) {
		m.progress = fn
	}
}

// WithSinkName names the output in errors.
func WithSinkName(name string) MergerOption {
	return func(m *Merger) {
		m.sink = name
	}
}

func withMergeClock(now func() time.Time) MergerOption {
	return func(m *Merger) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMerger creates a Merger reading chunks from fs.
func NewMerger(fs afero.Fs, logger *slog.Logger, opts ...MergerOption) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Merger{
		fs:     fs,
		logger: logger.With("component", "sorter.merger"),
		now:    time.Now,
		sink:   "output",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge writes the ascending merge of every line in paths to w, each line
// followed by '\n'. totalLines is only used for progress reports. All chunk
// files are closed before Merge returns, whatever the outcome.
func (m *Merger) Merge(ctx context.Context, paths []string, w io.Writer, totalLines int64) (MergeStats, error) {
	start := m.now()
	stats := MergeStats{Chunks: len(paths)}

	it, err := NewMergeIterator(m.fs, paths)
	if err != nil {
		return stats, err
	}
	defer it.Close()

	report := func() {
		if m.progress == nil {
			return
		}
		elapsed := m.now().Sub(start)
		m.progress(Progress{
			Stage:      StageMerge,
			Chunks:     len(paths),
			Lines:      stats.Lines,
			TotalLines: totalLines,
			Bytes:      stats.Bytes,
			Elapsed:    elapsed,
			Remaining:  Extrapolate(stats.Lines, totalLines, elapsed),
		})
	}
	report()

	bw := bufio.NewWriterSize(w, writeBufSize)
	for it.Next() {
		line := it.Line()
		if err := writeLine(bw, line); err != nil {
			return stats, ioErr("write", m.sink, err)
		}
		stats.Lines++
		stats.Bytes += int64(len(line)) + 1
		if stats.Lines%mergeCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			report()
		}
	}
	if err := it.Err(); err != nil {
		return stats, err
	}
	if err := bw.Flush(); err != nil {
		return stats, ioErr("write", m.sink, err)
	}
	if err := it.Close(); err != nil {
		return stats, err
	}

	stats.Duration = m.now().Sub(start)
	report()
	m.logger.Info("chunks merged",
		"chunks", stats.Chunks,
		"lines", stats.Lines,
		"bytes", stats.Bytes,
		"duration", stats.Duration,
	)
	return stats, nil
}
