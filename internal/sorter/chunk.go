package sorter

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"

	"github.com/spf13/afero"
)

const writeBufSize = 64 * 1024

var chunkNameRegex = regexp.MustCompile(`^chunk_(\d+)\.txt$`)

// ChunkInfo describes one chunk file once written.
type ChunkInfo struct {
	Index int    `json:"index" yaml:"index"`
	Path  string `json:"path" yaml:"path"`
	Lines int    `json:"lines" yaml:"lines"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// ChunkName returns the file name for the chunk with the given index.
func ChunkName(index int) string {
	return fmt.Sprintf("chunk_%d.txt", index)
}

// ParseChunkName returns the index encoded in a chunk file name.
func ParseChunkName(name string) (int, bool) {
	m := chunkNameRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// WriteChunk sorts lines in place and writes them to path, one per line,
// replacing any existing file. The sort is not stable; equal lines are all
// kept.
func WriteChunk(fs afero.Fs, path string, lines []string) (ChunkInfo, error) {
	slices.Sort(lines)

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return ChunkInfo{}, ioErr("create", path, err)
	}

	info := ChunkInfo{Path: path, Lines: len(lines)}
	w := bufio.NewWriterSize(f, writeBufSize)
	for _, l := range lines {
		if err := writeLine(w, l); err != nil {
			f.Close()
			return ChunkInfo{}, ioErr("write", path, err)
		}
		info.Bytes += int64(len(l)) + 1
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return ChunkInfo{}, ioErr("write", path, err)
	}
	if err := f.Close(); err != nil {
		return ChunkInfo{}, ioErr("write", path, err)
	}
	return info, nil
}

func writeLine(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
