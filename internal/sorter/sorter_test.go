package sorter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newMemSorter(t *testing.T, fs afero.Fs, opts ...Option) *Sorter {
	t.Helper()
	opts = append([]Option{WithFs(fs), WithTempDir("/tmp/bigsort")}, opts...)
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func randomLines(r *rand.Rand, n, maxLen int) []string {
	lines := make([]string, n)
	for i := range lines {
		b := make([]byte, r.IntN(maxLen+1))
		for j := range b {
			b[j] = byte('a' + r.IntN(26))
		}
		lines[i] = string(b)
	}
	return lines
}

func readLines(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if data[len(data)-1] != '\n' {
		t.Fatalf("%s does not end with a newline", path)
	}
	return strings.Split(string(data[:len(data)-1]), "\n")
}

func TestSortIsSortedPermutation(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, capacity := range []int64{1, 50, 1000, 1 << 20} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			lines := randomLines(r, 500, 30)
			input := strings.Join(lines, "\n") + "\n"
			if err := afero.WriteFile(fs, "/in.txt", []byte(input), 0o644); err != nil {
				t.Fatal(err)
			}

			s := newMemSorter(t, fs, WithChunkSize(capacity))
			res, err := s.Sort(context.Background(), "/in.txt", "/out.txt")
			if err != nil {
				t.Fatalf("Sort: %v", err)
			}

			got := readLines(t, fs, "/out.txt")
			want := slices.Clone(lines)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Fatalf("output is not the sorted input")
			}
			if res.Lines != int64(len(lines)) {
				t.Errorf("Result.Lines = %d, want %d", res.Lines, len(lines))
			}
			if res.Capacity != capacity {
				t.Errorf("Result.Capacity = %d, want %d", res.Capacity, capacity)
			}
		})
	}
}

func TestSortIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	input := "pear\napple\n\nfig\napple\n"
	if err := afero.WriteFile(fs, "/in.txt", []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newMemSorter(t, fs, WithChunkSize(8))
	if _, err := s.Sort(context.Background(), "/in.txt", "/once.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sort(context.Background(), "/once.txt", "/twice.txt"); err != nil {
		t.Fatal(err)
	}
	once, _ := afero.ReadFile(fs, "/once.txt")
	twice, _ := afero.ReadFile(fs, "/twice.txt")
	if string(once) != "\napple\napple\nfig\npear\n" {
		t.Fatalf("once = %q", once)
	}
	if string(once) != string(twice) {
		t.Fatalf("sorting sorted output changed it: %q vs %q", once, twice)
	}
}

func TestSortEdgeInputs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"single line", "only\n", "only\n"},
		{"missing final newline", "b\na", "a\nb\n"},
		{"only empty lines", "\n\n", "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/in.txt", []byte(tt.input), 0o644); err != nil {
				t.Fatal(err)
			}
			res, err := newMemSorter(t, fs).Sort(context.Background(), "/in.txt", "/out.txt")
			if err != nil {
				t.Fatalf("Sort: %v", err)
			}
			got, err := afero.ReadFile(fs, "/out.txt")
			if err != nil {
				t.Fatalf("output missing: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if len(res.Chunks) < 1 {
				t.Errorf("no chunks recorded")
			}
		})
	}
}

func TestSortChunkCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte(fixedLines(10, 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	// Stale chunks from an earlier run and an unrelated file.
	if err := afero.WriteFile(fs, "/tmp/bigsort/chunk_42.txt", []byte("stale\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/tmp/bigsort/notes.md", []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("chunks discarded", func(t *testing.T) {
		res, err := newMemSorter(t, fs, WithChunkSize(220)).Sort(context.Background(), "/in.txt", "/out.txt")
		if err != nil {
			t.Fatalf("Sort: %v", err)
		}
		if len(res.Chunks) != 5 {
			t.Fatalf("chunks = %d, want 5", len(res.Chunks))
		}
		for _, c := range res.Chunks {
			if ok, _ := afero.Exists(fs, c.Path); ok {
				t.Errorf("chunk %s left behind", c.Path)
			}
		}
		if ok, _ := afero.Exists(fs, "/tmp/bigsort/chunk_42.txt"); ok {
			t.Errorf("stale chunk not removed")
		}
		if ok, _ := afero.Exists(fs, "/tmp/bigsort/notes.md"); !ok {
			t.Errorf("unrelated file removed")
		}
		for _, l := range readLines(t, fs, "/out.txt") {
			if l == "stale" {
				t.Fatalf("stale chunk merged into output")
			}
		}
	})

	t.Run("chunks kept", func(t *testing.T) {
		res, err := newMemSorter(t, fs, WithChunkSize(220), WithKeepChunks(true)).
			Sort(context.Background(), "/in.txt", "/out.txt")
		if err != nil {
			t.Fatalf("Sort: %v", err)
		}
		if !res.ChunksKept {
			t.Errorf("ChunksKept = false")
		}
		for i, c := range res.Chunks {
			if c.Path != filepath.Join("/tmp/bigsort", ChunkName(i)) {
				t.Errorf("chunk %d path = %q", i, c.Path)
			}
			if ok, _ := afero.Exists(fs, c.Path); !ok {
				t.Errorf("chunk %s missing", c.Path)
			}
		}
	})
}

func TestSortRemovesEmptyTempDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte("b\na\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newMemSorter(t, fs).Sort(context.Background(), "/in.txt", "/out.txt"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := afero.DirExists(fs, "/tmp/bigsort"); ok {
		t.Errorf("empty temp dir left behind")
	}
}

func TestSortMissingInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := newMemSorter(t, fs).Sort(context.Background(), "/nope.txt", "/out.txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Path != "/nope.txt" {
		t.Fatalf("error = %v, want *IOError for /nope.txt", err)
	}
	if ok, _ := afero.Exists(fs, "/out.txt"); ok {
		t.Errorf("output created for missing input")
	}
}

func TestSortConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := New(WithFs(fs), WithChunkSize(-1)); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("negative chunk size: error = %v", err)
	}
	if _, err := New(WithFs(fs), WithMemoryLimit(-5)); !errors.Is(err, ErrInvalidMemoryLimit) {
		t.Errorf("negative memory limit: error = %v", err)
	}
	if _, err := New(WithFs(fs), WithTempDir("")); err == nil {
		t.Errorf("empty temp dir accepted")
	}

	s := newMemSorter(t, fs)
	if _, err := s.Sort(context.Background(), "", "/out.txt"); !errors.Is(err, ErrNoInput) || !IsConfigError(err) {
		t.Errorf("empty input: error = %v", err)
	}
	if _, err := s.Sort(context.Background(), "/in.txt", ""); !errors.Is(err, ErrNoOutput) {
		t.Errorf("empty output: error = %v", err)
	}
}

func TestSortMemoryLimitDerivesCapacity(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte(fixedLines(30, 84)), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newMemSorter(t, fs, WithMemoryLimit(1000))
	res, err := s.Sort(context.Background(), "/in.txt", "/out.txt")
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if res.Capacity != 840 {
		t.Fatalf("Capacity = %d, want 840", res.Capacity)
	}
	if len(res.Chunks) < 2 {
		t.Errorf("chunks = %d, want several", len(res.Chunks))
	}

	tiny := newMemSorter(t, fs, WithMemoryLimit(10))
	if _, err := tiny.Sort(context.Background(), "/in.txt", "/out2.txt"); !errors.Is(err, ErrInvalidMemoryLimit) {
		t.Errorf("memory limit below one line: error = %v", err)
	}
}

func TestSortChunkSizeWinsOverMemoryLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := newMemSorter(t, fs, WithChunkSize(4096), WithMemoryLimit(1)).
		Sort(context.Background(), "/in.txt", "/out.txt")
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if res.Capacity != 4096 {
		t.Fatalf("Capacity = %d, want 4096", res.Capacity)
	}
}

func TestSortFailureKeepsPreviousOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte(fixedLines(10, 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/out.txt", []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newMemSorter(t, fs, WithChunkSize(220)).Sort(ctx, "/in.txt", "/out.txt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	got, _ := afero.ReadFile(fs, "/out.txt")
	if string(got) != "previous\n" {
		t.Errorf("output = %q, want the previous content", got)
	}
	entries, _ := afero.ReadDir(fs, "/tmp/bigsort")
	for _, e := range entries {
		if _, ok := ParseChunkName(e.Name()); ok {
			t.Errorf("chunk %s left after failure", e.Name())
		}
	}
	if ok, _ := afero.DirExists(fs, "/tmp/bigsort"); ok {
		t.Error("empty temp dir left after failure")
	}
}

func TestSortReportsStages(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in.txt", []byte(fixedLines(10, 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	var stages []Stage
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	s := newMemSorter(t, fs, WithChunkSize(220), WithClock(clock), WithProgress(func(p Progress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}))
	res, err := s.Sort(context.Background(), "/in.txt", "/out.txt")
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := []Stage{StageSplit, StageMerge, StageDone}
	if !slices.Equal(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if res.Total <= 0 || res.SplitDuration <= 0 || res.MergeDuration <= 0 {
		t.Errorf("durations not recorded: %+v", res)
	}
}

func TestSortOnDisk(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(in, []byte("delta\nalpha\ncharlie\nbravo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(WithTempDir(filepath.Join(dir, "chunks")), WithChunkSize(12))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sort(context.Background(), in, out); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "alpha\nbravo\ncharlie\ndelta\n" {
		t.Fatalf("output = %q", got)
	}
	st, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o644 {
		t.Errorf("output mode = %v, want 0644", st.Mode().Perm())
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".bigsort-*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left: %v", matches)
	}
}
