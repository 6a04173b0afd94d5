package sorter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
)

func writeChunks(t *testing.T, fs afero.Fs, chunks ...string) []string {
	t.Helper()
	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = "/" + ChunkName(i)
		if err := afero.WriteFile(fs, paths[i], []byte(c), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func TestMergeIterator(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"single chunk", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}},
		{"interleaved", []string{"a\nd\ng\n", "b\ne\nh\n", "c\nf\n"}, []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
		{"duplicates across chunks", []string{"a\nb\n", "a\nb\n"}, []string{"a", "a", "b", "b"}},
		{"empty chunks skipped", []string{"", "b\n", ""}, []string{"b"}},
		{"all empty", []string{"", ""}, nil},
		{"empty lines sort first", []string{"x\n", "\n\n"}, []string{"", "", "x"}},
		{"byte order", []string{"b\n", "B\n", "a\n"}, []string{"B", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			it, err := NewMergeIterator(fs, writeChunks(t, fs, tt.chunks...))
			if err != nil {
				t.Fatalf("NewMergeIterator: %v", err)
			}
			defer it.Close()

			var got []string
			for it.Next() {
				got = append(got, it.Line())
			}
			if err := it.Err(); err != nil {
				t.Fatalf("Err: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMergeIteratorMissingChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := writeChunks(t, fs, "a\n")
	paths = append(paths, "/missing.txt")

	_, err := NewMergeIterator(fs, paths)
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("error = %v, want *IOError", err)
	}
	if ioe.Path != "/missing.txt" {
		t.Errorf("Path = %q", ioe.Path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not match os.ErrNotExist", err)
	}
}

func TestMergeIteratorCloseEarly(t *testing.T) {
	fs := afero.NewMemMapFs()
	it, err := NewMergeIterator(fs, writeChunks(t, fs, "a\nc\n", "b\nd\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !it.Next() || it.Line() != "a" {
		t.Fatalf("first line = %q", it.Line())
	}
	if err := it.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if it.Next() {
		t.Fatalf("Next after Close returned true")
	}
	if err := it.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMergerMerge(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := writeChunks(t, fs, "apple\nmango\n", "", "banana\nzucchini\n", "mango\n")

	var reports []Progress
	m := NewMerger(fs, nil, WithMergeProgress(func(p Progress) { reports = append(reports, p) }))
	var buf bytes.Buffer
	stats, err := m.Merge(context.Background(), paths, &buf, 5)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := "apple\nbanana\nmango\nmango\nzucchini\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
	if stats.Lines != 5 || stats.Bytes != int64(len(want)) || stats.Chunks != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if len(reports) < 2 {
		t.Fatalf("got %d progress reports, want at least 2", len(reports))
	}
	if reports[0].Lines != 0 {
		t.Errorf("first report Lines = %d, want 0", reports[0].Lines)
	}
	if last := reports[len(reports)-1]; last.Fraction() != 1 {
		t.Errorf("final fraction = %v, want 1", last.Fraction())
	}
}

func TestMergerMergeNoLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	stats, err := NewMerger(fs, nil).Merge(context.Background(), writeChunks(t, fs, ""), &buf, 0)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if buf.Len() != 0 || stats.Lines != 0 {
		t.Fatalf("output = %q, stats = %+v", buf.String(), stats)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left") }

func TestMergerWriteError(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMerger(fs, nil, WithSinkName("out.txt"))
	_, err := m.Merge(context.Background(), writeChunks(t, fs, "a\n"), failingWriter{}, 1)
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("error = %v, want *IOError", err)
	}
	if ioe.Op != "write" || ioe.Path != "out.txt" {
		t.Errorf("IOError = %+v", ioe)
	}
}
