package sorter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func fixedLines(n, length int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(strings.Repeat(string(rune('a'+i%26)), length))
		b.WriteByte('\n')
	}
	return b.String()
}

func split(t *testing.T, fs afero.Fs, input string, capacity int64) []ChunkInfo {
	t.Helper()
	budget, err := NewBudget(capacity)
	if err != nil {
		t.Fatalf("NewBudget: %v", err)
	}
	if err := fs.MkdirAll("/chunks", 0o755); err != nil {
		t.Fatal(err)
	}
	sp := NewSplitter(fs, "/chunks", budget, nil)
	chunks, err := sp.Split(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	return chunks
}

func TestSplitChunkBoundary(t *testing.T) {
	// Ten 99-byte lines: 990 bytes, 1089 with the margin.
	input := fixedLines(10, 99)

	tests := []struct {
		capacity int64
		want     int
	}{
		{1088, 2},
		{1089, 1},
		{1090, 1},
	}
	for _, tt := range tests {
		fs := afero.NewMemMapFs()
		chunks := split(t, fs, input, tt.capacity)
		if len(chunks) != tt.want {
			t.Errorf("capacity %d: got %d chunks, want %d", tt.capacity, len(chunks), tt.want)
		}
	}
}

func TestSplitNBoundariesGiveNPlusOneChunks(t *testing.T) {
	// Each 100-byte line pushes the accumulator over a capacity of 200 on
	// every second line: 10 lines, 2 per chunk.
	fs := afero.NewMemMapFs()
	chunks := split(t, fs, fixedLines(10, 100), 220)
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Lines != 2 {
			t.Errorf("chunk %d has %d lines, want 2", i, c.Lines)
		}
		if filepath.Base(c.Path) != ChunkName(i) {
			t.Errorf("chunk %d path = %q", i, c.Path)
		}
	}
}

func TestSplitEmptyInputWritesOneEmptyChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	chunks := split(t, fs, "", 1<<20)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	st, err := fs.Stat(chunks[0].Path)
	if err != nil {
		t.Fatalf("chunk missing: %v", err)
	}
	if st.Size() != 0 {
		t.Fatalf("chunk size = %d, want 0", st.Size())
	}
}

func TestSplitSingleLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	chunks := split(t, fs, "hello\n", 1<<20)
	if len(chunks) != 1 || chunks[0].Lines != 1 {
		t.Fatalf("got %+v, want one chunk with one line", chunks)
	}
}

func TestSplitOversizedLines(t *testing.T) {
	const capacity = 1 << 20
	long := strings.Repeat("L", 1_100_000)

	t.Run("one long line", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		chunks := split(t, fs, long+"\n", capacity)
		if len(chunks) != 2 {
			t.Fatalf("got %d chunks, want 2", len(chunks))
		}
		if chunks[0].Lines != 0 {
			t.Errorf("first chunk has %d lines, want 0", chunks[0].Lines)
		}
		if chunks[1].Lines != 1 || chunks[1].Bytes != int64(len(long))+1 {
			t.Errorf("second chunk = %+v, want the long line alone", chunks[1])
		}
	})

	t.Run("two long lines", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		chunks := split(t, fs, long+"\n"+long+"\n", capacity)
		if len(chunks) != 3 {
			t.Fatalf("got %d chunks, want 3", len(chunks))
		}
	})

	t.Run("short line then two long lines", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		chunks := split(t, fs, "s\n"+long+"\n"+long+"\n", capacity)
		if len(chunks) != 3 {
			t.Fatalf("got %d chunks, want 3", len(chunks))
		}
		if chunks[0].Bytes != 2 {
			t.Errorf("first chunk bytes = %d, want 2", chunks[0].Bytes)
		}
	})

	t.Run("long line is isolated from following lines", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		chunks := split(t, fs, "a\n"+long+"\nb\nc\n", capacity)
		if len(chunks) != 3 {
			t.Fatalf("got %d chunks, want 3", len(chunks))
		}
		if chunks[1].Lines != 1 {
			t.Errorf("long line chunk has %d lines, want 1", chunks[1].Lines)
		}
		if chunks[2].Lines != 2 {
			t.Errorf("last chunk has %d lines, want 2", chunks[2].Lines)
		}
	})
}

func TestSplitChunksAreSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	chunks := split(t, fs, "d\nb\nc\na\nf\ne\n", 3)
	for _, c := range chunks {
		data, err := afero.ReadFile(fs, c.Path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		for i := 1; i < len(lines); i++ {
			if lines[i-1] > lines[i] {
				t.Errorf("chunk %s not sorted: %q", c.Path, lines)
			}
		}
	}
}

func TestSplitReportsProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	budget, _ := NewBudget(220)
	input := fixedLines(10, 100)

	var got []Progress
	sp := NewSplitter(fs, "/", budget, nil,
		WithSplitProgress(func(p Progress) { got = append(got, p) }, int64(len(input))),
	)
	if _, err := sp.Split(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d progress reports, want 5", len(got))
	}
	last := got[len(got)-1]
	if last.Stage != StageSplit || last.Chunks != 5 || last.Lines != 10 {
		t.Errorf("last progress = %+v", last)
	}
	if last.Fraction() != 1 {
		t.Errorf("last fraction = %v, want 1", last.Fraction())
	}
}

func TestSplitHonorsCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	budget, _ := NewBudget(220)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sp := NewSplitter(fs, "/", budget, nil)
	_, err := sp.Split(ctx, strings.NewReader(fixedLines(10, 100)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSplitReadErrorIsIOError(t *testing.T) {
	fs := afero.NewMemMapFs()
	budget, _ := NewBudget(100)
	sp := NewSplitter(fs, "/", budget, nil, WithSourceName("broken.txt"))
	_, err := sp.Split(context.Background(), failingReader{})
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("error = %v, want *IOError", err)
	}
	if ioe.Path != "broken.txt" || ioe.Op != "read" {
		t.Errorf("IOError = %+v", ioe)
	}
}
