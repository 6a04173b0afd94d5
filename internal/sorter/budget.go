package sorter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// marginNum/marginDen is the headroom applied to raw line bytes when
	// deciding whether a chunk is full: 10% on top of the accumulated size.
	marginNum = 11
	marginDen = 10

	// LineOverhead is the in-memory cost of holding one line in the
	// accumulator beyond its bytes (a string header).
	LineOverhead = 16

	// DefaultChunkSize is the chunk capacity used when neither a chunk size
	// nor a memory limit is configured.
	DefaultChunkSize = 1 << 20

	// DefaultSampleSize is how much of the input EstimateLineSize reads.
	DefaultSampleSize = 1 << 20
)

// Budget is the byte capacity of one chunk.
type Budget struct {
	Capacity int64
}

// NewBudget validates capacity and returns a Budget.
func NewBudget(capacity int64) (Budget, error) {
	if capacity <= 0 {
		return Budget{}, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return Budget{Capacity: capacity}, nil
}

// Exceeds reports whether adding a line of next bytes to an accumulator
// already holding running bytes would overflow the chunk once the margin is
// applied. The comparison is exact: (running+next)*1.1 > capacity.
func (b Budget) Exceeds(running, next int64) bool {
	return (running+next)*marginNum > b.Capacity*marginDen
}

// ChunkCapacity converts a memory limit and an average line size into a
// chunk capacity in bytes. Every accumulated line costs its bytes plus
// LineOverhead; the capacity is the raw byte count of as many average lines
// as fit in the limit. The flush margin is applied separately by Exceeds.
func ChunkCapacity(memoryLimit, avgLineSize int64) (int64, error) {
	if memoryLimit <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMemoryLimit, memoryLimit)
	}
	if avgLineSize <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLineSize, avgLineSize)
	}
	lines := memoryLimit / (avgLineSize + LineOverhead)
	if lines == 0 {
		return 0, fmt.Errorf("%w: %d bytes cannot hold a single %d-byte line", ErrInvalidMemoryLimit, memoryLimit, avgLineSize)
	}
	return lines * avgLineSize, nil
}

// EstimateLineSize returns the average line length (terminator excluded) of
// the first sample bytes of r. Inputs with no complete line in the sample
// count the partial line. An empty input returns 1 so callers can still size
// a budget.
func EstimateLineSize(r io.Reader, sample int) (int64, error) {
	if sample <= 0 {
		sample = DefaultSampleSize
	}
	br := bufio.NewReader(io.LimitReader(r, int64(sample)))

	var lines, total int64
	partial := false
scan:
	for {
		frag, err := br.ReadSlice('\n')
		total += int64(len(frag))
		switch {
		case err == nil:
			total-- // terminator
			lines++
			partial = false
		case errors.Is(err, bufio.ErrBufferFull):
			partial = true
		case errors.Is(err, io.EOF):
			if len(frag) > 0 || partial {
				lines++
			}
			break scan
		default:
			return 0, err
		}
	}

	if lines == 0 || total == 0 {
		return 1, nil
	}
	avg := total / lines
	if avg == 0 {
		avg = 1
	}
	return avg, nil
}

// EstimateChunks predicts how many chunks a file of fileSize bytes produces.
// Used only to extrapolate remaining time.
func EstimateChunks(fileSize, capacity int64) int {
	if capacity <= 0 {
		return 1
	}
	return int(fileSize/capacity) + 1
}
