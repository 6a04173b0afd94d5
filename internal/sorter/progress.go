package sorter

import "time"

// Stage identifies what a sort is doing.
type Stage string

const (
	StageSplit Stage = "split"
	StageMerge Stage = "merge"
	StageDone  Stage = "done"
)

// Progress is a snapshot reported while a sort runs. During the split stage
// Lines and Bytes count input consumed; during the merge stage Lines counts
// lines written to the output out of TotalLines.
type Progress struct {
	Stage           Stage         `json:"stage"`
	Chunks          int           `json:"chunks"`
	EstimatedChunks int           `json:"estimated_chunks"`
	Lines           int64         `json:"lines"`
	TotalLines      int64         `json:"total_lines,omitempty"`
	Bytes           int64         `json:"bytes"`
	TotalBytes      int64         `json:"total_bytes,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	Remaining       time.Duration `json:"remaining"`
}

// Fraction returns how far along the current stage is, in [0, 1].
func (p Progress) Fraction() float64 {
	switch p.Stage {
	case StageDone:
		return 1
	case StageMerge:
		return ratio(p.Lines, p.TotalLines)
	}
	if p.TotalBytes > 0 {
		return ratio(p.Bytes, p.TotalBytes)
	}
	return ratio(int64(p.Chunks), int64(p.EstimatedChunks))
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	f := float64(n) / float64(d)
	if f > 1 {
		return 1
	}
	return f
}

// ProgressFunc receives progress snapshots. It is called synchronously from
// the sorting goroutine and should return quickly.
type ProgressFunc func(Progress)

// Extrapolate linearly estimates the time left to finish total units of work
// when done units took elapsed. It returns 0 when nothing is done yet or the
// work is complete.
func Extrapolate(done, total int64, elapsed time.Duration) time.Duration {
	if done <= 0 || total <= done || elapsed <= 0 {
		return 0
	}
	rate := float64(done) / elapsed.Seconds()
	return time.Duration(float64(total-done) / rate * float64(time.Second))
}
