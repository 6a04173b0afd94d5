// Package sorter implements an external sort of line-oriented text files.
//
// Input lines are accumulated in memory until the chunk budget would be
// exceeded, sorted and spilled to numbered chunk files, then k-way merged
// into the output. Memory use is bounded by the chunk capacity during the
// split and by one line per chunk during the merge.
//
// Lines compare byte-wise. The sort is not stable: equal lines are all kept
// but their relative order is unspecified.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// DefaultTempDirName is the chunk directory created under os.TempDir when
// no temp dir is configured.
const DefaultTempDirName = "bigsort"

// Sorter runs external sorts. A Sorter exclusively owns its temp directory
// while Sort runs; concurrent sorts must use distinct directories.
type Sorter struct {
	fs          afero.Fs
	tempDir     string
	chunkSize   int64
	memoryLimit int64
	keepChunks  bool
	logger      *slog.Logger
	progress    ProgressFunc
	now         func() time.Time
}

// Option configures a Sorter.
type Option func(*Sorter)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Sorter) {
		s.fs = fs
	}
}

// WithTempDir sets the directory chunk files are written to.
func WithTempDir(dir string) Option {
	return func(s *Sorter) {
		s.tempDir = dir
	}
}

// WithChunkSize sets the chunk capacity in bytes. It takes precedence over
// WithMemoryLimit.
func WithChunkSize(n int64) Option {
	return func(s *Sorter) {
		s.chunkSize = n
	}
}

// WithMemoryLimit derives the chunk capacity from a memory budget and the
// average line size sampled from the input. Ignored when a chunk size is set.
func WithMemoryLimit(n int64) Option {
	return func(s *Sorter) {
		s.memoryLimit = n
	}
}

// WithKeepChunks leaves chunk files in the temp directory after the sort.
func WithKeepChunks(keep bool) Option {
	return func(s *Sorter) {
		s.keepChunks = keep
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sorter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress sets a callback receiving progress snapshots.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Sorter) {
		s.progress = fn
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sorter) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Sorter. Configuration errors are reported here, before any
// file is touched.
func New(opts ...Option) (*Sorter, error) {
	s := &Sorter{
		fs:      afero.NewOsFs(),
		tempDir: filepath.Join(os.TempDir(), DefaultTempDirName),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, s.chunkSize)
	}
	if s.memoryLimit < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMemoryLimit, s.memoryLimit)
	}
	if s.tempDir == "" {
		return nil, fmt.Errorf("temp dir is empty")
	}
	s.logger = s.logger.With("component", "sorter")
	return s, nil
}

// TempDir returns the chunk directory.
func (s *Sorter) TempDir() string { return s.tempDir }

// Result describes a completed sort.
type Result struct {
	Input         string        `json:"input" yaml:"input"`
	Output        string        `json:"output" yaml:"output"`
	TempDir       string        `json:"temp_dir" yaml:"temp_dir"`
	Capacity      int64         `json:"capacity" yaml:"capacity"`
	Chunks        []ChunkInfo   `json:"chunks" yaml:"chunks"`
	ChunksKept    bool          `json:"chunks_kept" yaml:"chunks_kept"`
	Lines         int64         `json:"lines" yaml:"lines"`
	Bytes         int64         `json:"bytes" yaml:"bytes"`
	SplitDuration time.Duration `json:"split_duration" yaml:"split_duration"`
	MergeDuration time.Duration `json:"merge_duration" yaml:"merge_duration"`
	Total         time.Duration `json:"total" yaml:"total"`
}

// Sort sorts the lines of input into output. The output is written to a
// temporary file beside it and renamed into place only once the merge has
// succeeded, so a failed sort never leaves a truncated output behind.
func (s *Sorter) Sort(ctx context.Context, input, output string) (*Result, error) {
	if input == "" {
		return nil, ErrNoInput
	}
	if output == "" {
		return nil, ErrNoOutput
	}
	start := s.now()

	st, err := s.fs.Stat(input)
	if err != nil {
		return nil, ioErr("open", input, err)
	}

	capacity, err := s.resolveCapacity(input)
	if err != nil {
		return nil, err
	}
	budget, err := NewBudget(capacity)
	if err != nil {
		return nil, err
	}

	if err := s.prepareTempDir(); err != nil {
		return nil, err
	}

	res := &Result{
		Input:      input,
		Output:     output,
		TempDir:    s.tempDir,
		Capacity:   capacity,
		ChunksKept: s.keepChunks,
	}

	s.logger.Info("sort started",
		"input", input,
		"output", output,
		"temp_dir", s.tempDir,
		"input_bytes", st.Size(),
		"capacity", capacity,
	)

	chunks, err := s.split(ctx, input, budget, st.Size())
	res.Chunks = chunks
	if err != nil {
		s.cleanup(chunks)
		return nil, err
	}
	splitDone := s.now()
	res.SplitDuration = splitDone.Sub(start)
	for _, c := range chunks {
		res.Lines += int64(c.Lines)
		res.Bytes += c.Bytes
	}

	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = c.Path
	}
	if err := s.merge(ctx, paths, output, res.Lines); err != nil {
		s.cleanup(chunks)
		return nil, err
	}
	res.MergeDuration = s.now().Sub(splitDone)

	s.cleanup(chunks)

	res.Total = s.now().Sub(start)
	if s.progress != nil {
		s.progress(Progress{
			Stage:      StageDone,
			Chunks:     len(chunks),
			Lines:      res.Lines,
			TotalLines: res.Lines,
			Bytes:      res.Bytes,
			TotalBytes: st.Size(),
			Elapsed:    res.Total,
		})
	}
	s.logger.Info("sort finished",
		"output", output,
		"chunks", len(chunks),
		"lines", res.Lines,
		"split", res.SplitDuration,
		"merge", res.MergeDuration,
		"total", res.Total,
	)
	return res, nil
}

// resolveCapacity picks the chunk capacity: explicit chunk size, then the
// memory limit with a sampled line size, then the default.
func (s *Sorter) resolveCapacity(input string) (int64, error) {
	if s.chunkSize > 0 {
		return s.chunkSize, nil
	}
	if s.memoryLimit <= 0 {
		return DefaultChunkSize, nil
	}

	f, err := s.fs.Open(input)
	if err != nil {
		return 0, ioErr("open", input, err)
	}
	defer f.Close()

	avg, err := EstimateLineSize(f, DefaultSampleSize)
	if err != nil {
		return 0, ioErr("read", input, err)
	}
	capacity, err := ChunkCapacity(s.memoryLimit, avg)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("chunk capacity derived from memory limit",
		"memory_limit", s.memoryLimit,
		"avg_line_size", avg,
		"capacity", capacity,
	)
	return capacity, nil
}

// prepareTempDir creates the temp dir and removes chunk files left by an
// earlier run. Files the sorter does not name are left alone.
func (s *Sorter) prepareTempDir() error {
	if err := s.fs.MkdirAll(s.tempDir, 0o755); err != nil {
		return ioErr("mkdir", s.tempDir, err)
	}
	entries, err := afero.ReadDir(s.fs, s.tempDir)
	if err != nil {
		return ioErr("read", s.tempDir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseChunkName(e.Name()); !ok {
			continue
		}
		p := filepath.Join(s.tempDir, e.Name())
		if err := s.fs.Remove(p); err != nil {
			return ioErr("remove", p, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Debug("removed stale chunks", "dir", s.tempDir, "count", removed)
	}
	return nil
}

func (s *Sorter) split(ctx context.Context, input string, budget Budget, size int64) ([]ChunkInfo, error) {
	f, err := s.fs.Open(input)
	if err != nil {
		return nil, ioErr("open", input, err)
	}
	defer f.Close()

	sp := NewSplitter(s.fs, s.tempDir, budget, s.logger,
		WithSourceName(input),
		WithSplitProgress(s.progress, size),
		withSplitClock(s.now),
	)
	return sp.Split(ctx, f)
}

func (s *Sorter) merge(ctx context.Context, paths []string, output string, totalLines int64) error {
	dir := filepath.Dir(output)
	tmp, err := afero.TempFile(s.fs, dir, ".bigsort-*.tmp")
	if err != nil {
		return ioErr("create", output, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			s.fs.Remove(tmpPath)
		}
	}()

	m := NewMerger(s.fs, s.logger,
		WithSinkName(output),
		WithMergeProgress(s.progress),
		withMergeClock(s.now),
	)
	if _, err := m.Merge(ctx, paths, tmp, totalLines); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return ioErr("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return ioErr("write", tmpPath, err)
	}
	if err := s.fs.Chmod(tmpPath, 0o644); err != nil {
		return ioErr("chmod", tmpPath, err)
	}
	if err := s.fs.Rename(tmpPath, output); err != nil {
		return ioErr("rename", output, err)
	}
	success = true
	return nil
}

// discardChunks removes chunk files unless they are to be kept. Failures are
// logged; the sort outcome does not depend on them.
func (s *Sorter) discardChunks(chunks []ChunkInfo) {
	if s.keepChunks {
		return
	}
	for _, c := range chunks {
		if err := s.fs.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove chunk", "path", c.Path, "error", err)
		}
	}
}

// cleanup removes the chunks and then the temp dir if nothing else is in it.
func (s *Sorter) cleanup(chunks []ChunkInfo) {
	if s.keepChunks {
		return
	}
	s.discardChunks(chunks)
	s.removeTempDirIfEmpty()
}

func (s *Sorter) removeTempDirIfEmpty() {
	entries, err := afero.ReadDir(s.fs, s.tempDir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := s.fs.Remove(s.tempDir); err != nil {
		s.logger.Debug("temp dir not removed", "dir", s.tempDir, "error", err)
	}
}
