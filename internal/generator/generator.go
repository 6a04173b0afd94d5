// Package generator writes files of random ASCII-letter lines for exercising
// the sorter.
package generator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Dicklesworthstone/bigsort/internal/sorter"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// DefaultProgressEvery is how many lines pass between progress reports.
	DefaultProgressEvery = 5000
)

var (
	ErrInvalidLines  = errors.New("line count must not be negative")
	ErrInvalidLength = errors.New("line length too small")
)

// Options describes the file to generate.
type Options struct {
	Lines int
	// Length is the size of each line in bytes, newline included. With
	// RandomLength it is an upper bound: each line carries between 1 and
	// Length-2 letters.
	Length       int
	RandomLength bool
	// Seed makes output reproducible. Zero seeds from the clock.
	Seed          uint64
	ProgressEvery int
}

// Validate checks that opts can produce at least one letter per line.
func (o Options) Validate() error {
	if o.Lines < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLines, o.Lines)
	}
	minLen := 2
	if o.RandomLength {
		minLen = 3
	}
	if o.Length < minLen {
		return fmt.Errorf("%w: need at least %d, got %d", ErrInvalidLength, minLen, o.Length)
	}
	return nil
}

// Progress is reported every ProgressEvery lines.
type Progress struct {
	Lines     int           `json:"lines"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// Stats summarizes a generated file.
type Stats struct {
	Path     string        `json:"path,omitempty"`
	Lines    int           `json:"lines"`
	Bytes    int64         `json:"bytes"`
	Seed     uint64        `json:"seed"`
	Duration time.Duration `json:"duration"`
}

// DefaultName returns the file name used when none is given.
func DefaultName(lines, length int, now time.Time) string {
	return fmt.Sprintf("sort_%d_%d_%d.txt", lines, length, now.Unix())
}

// Generator writes random line files.
type Generator struct {
	fs     afero.Fs
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Generator writing to fs.
func New(fs afero.Fs, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		fs:     fs,
		logger: logger.With("component", "generator"),
		now:    time.Now,
	}
}

// Write streams opts.Lines random lines to w.
func (g *Generator) Write(ctx context.Context, w io.Writer, opts Options, progress func(Progress)) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, err
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(g.now().UnixNano())
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	start := g.now()
	stats := Stats{Seed: seed}
	bw := bufio.NewWriterSize(w, 64*1024)
	buf := make([]byte, opts.Length)

	for k := 0; k < opts.Lines; k++ {
		if k > 0 && k%every == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if progress != nil {
				elapsed := g.now().Sub(start)
				progress(Progress{
					Lines:     k,
					Total:     opts.Lines,
					Elapsed:   elapsed,
					Remaining: sorter.Extrapolate(int64(k), int64(opts.Lines), elapsed),
				})
			}
		}

		n := opts.Length - 1
		if opts.RandomLength {
			n = 1 + r.IntN(opts.Length-2)
		}
		for i := 0; i < n; i++ {
			buf[i] = letters[r.IntN(len(letters))]
		}
		buf[n] = '\n'
		if _, err := bw.Write(buf[:n+1]); err != nil {
			return stats, err
		}
		stats.Lines++
		stats.Bytes += int64(n + 1)
	}
	if err := bw.Flush(); err != nil {
		return stats, err
	}
	stats.Duration = g.now().Sub(start)
	return stats, nil
}

// WriteFile generates into path. The file appears only once complete.
func (g *Generator) WriteFile(ctx context.Context, path string, opts Options, progress func(Progress)) (Stats, error) {
	tmp, err := afero.TempFile(g.fs, filepath.Dir(path), ".bigsort-gen-*.tmp")
	if err != nil {
		return Stats{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			g.fs.Remove(tmpPath)
		}
	}()

	stats, err := g.Write(ctx, tmp, opts, progress)
	if err != nil {
		return stats, err
	}
	if err := tmp.Close(); err != nil {
		return stats, fmt.Errorf("closing temp file: %w", err)
	}
	if err := g.fs.Chmod(tmpPath, 0o644); err != nil {
		return stats, fmt.Errorf("setting permissions: %w", err)
	}
	if err := g.fs.Rename(tmpPath, path); err != nil {
		return stats, fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	stats.Path = path

	g.logger.Info("file generated",
		"path", path,
		"lines", stats.Lines,
		"bytes", stats.Bytes,
		"random_length", opts.RandomLength,
		"seed", stats.Seed,
		"duration", stats.Duration,
	)
	return stats, nil
}
