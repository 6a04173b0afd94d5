package sorter

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Splitter streams lines into an accumulator and spills it to sorted chunk
// files whenever the budget would be exceeded.
type Splitter struct {
	fs       afero.Fs
	dir      string
	budget   Budget
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time

	// totalBytes is the input size if known; it drives progress estimates.
	totalBytes int64
	source     string
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithSplitProgress reports a snapshot after every chunk. totalBytes is the
// input size used to estimate the chunk count; 0 if unknown.
func WithSplitProgress(fn ProgressFunc, totalBytes int64) SplitterOption {
	return func(s *Splitter) {
		s.progress = fn
		s.totalBytes = totalBytes
	}
}

// WithSourceName names the input in errors and logs.
func WithSourceName(name string) SplitterOption {
	return func(s *Splitter) {
		s.source = name
	}
}

func withSplitClock(now func() time.Time) SplitterOption {
	return func(s *Splitter) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSplitter creates a Splitter writing chunks into dir.
func NewSplitter(fs afero.Fs, dir string, budget Budget, logger *slog.Logger, opts ...SplitterOption) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Splitter{
		fs:     fs,
		dir:    dir,
		budget: budget,
		logger: logger.With("component", "sorter.splitter"),
		now:    time.Now,
		source: "input",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// accumulator is the in-memory working set of one chunk.
type accumulator struct {
	lines []string
	size  int64
}

func (a *accumulator) add(line string) {
	a.lines = append(a.lines, line)
	a.size += int64(len(line))
}

func (a *accumulator) reset() {
	a.lines = nil
	a.size = 0
}

// Split reads every line of r and returns the chunks it wrote, in creation
// order. At least one chunk is always written, even for an empty input. A
// line too large for the budget on its own ends up alone in its chunk.
func (s *Splitter) Split(ctx context.Context, r io.Reader) ([]ChunkInfo, error) {
	start := s.now()
	estimated := EstimateChunks(s.totalBytes, s.budget.Capacity)

	lr := NewLineReader(r)
	var acc accumulator
	var chunks []ChunkInfo

	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := len(chunks)
		path := filepath.Join(s.dir, ChunkName(idx))
		info, err := WriteChunk(s.fs, path, acc.lines)
		if err != nil {
			return err
		}
		info.Index = idx
		chunks = append(chunks, info)
		s.logger.Debug("chunk written",
			"index", idx,
			"path", path,
			"lines", info.Lines,
			"bytes", info.Bytes,
		)
		acc.reset()

		if s.progress != nil {
			done := len(chunks)
			if estimated < done {
				estimated = done
			}
			elapsed := s.now().Sub(start)
			s.progress(Progress{
				Stage:           StageSplit,
				Chunks:          done,
				EstimatedChunks: estimated,
				Lines:           lr.Lines(),
				Bytes:           lr.Bytes(),
				TotalBytes:      s.totalBytes,
				Elapsed:         elapsed,
				Remaining:       Extrapolate(int64(done), int64(estimated), elapsed),
			})
		}
		return nil
	}

	for lr.Next() {
		line := lr.Line()
		if s.budget.Exceeds(acc.size, int64(len(line))) {
			if err := flush(); err != nil {
				return chunks, err
			}
		}
		acc.add(line)
	}
	if err := lr.Err(); err != nil {
		return chunks, ioErr("read", s.source, err)
	}
	if err := flush(); err != nil {
		return chunks, err
	}

	s.logger.Info("input split",
		"source", s.source,
		"chunks", len(chunks),
		"lines", lr.Lines(),
		"bytes", lr.Bytes(),
		"capacity", s.budget.Capacity,
		"duration", s.now().Sub(start),
	)
	return chunks, nil
}
