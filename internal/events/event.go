// Package events carries sort lifecycle events from the sorting goroutine
// to observers such as the progress UI and watch-mode logging.
package events

import (
	"time"

	"github.com/Dicklesworthstone/bigsort/internal/sorter"
)

// Event types.
const (
	SortStarted       = "sort.started"
	SortProgress      = "sort.progress"
	SortCompleted     = "sort.completed"
	SortFailed        = "sort.failed"
	GenerateProgress  = "generate.progress"
	GenerateCompleted = "generate.completed"
	WatchQueued       = "watch.queued"
)

// Event is one lifecycle notification.
type Event struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	RunID     string           `json:"run_id,omitempty"`
	Path      string           `json:"path,omitempty"`
	Progress  *sorter.Progress `json:"progress,omitempty"`
	// Fraction is the completed share of the current task, in [0, 1].
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message,omitempty"`
	Err      error   `json:"-"`
}

// Terminal reports whether no further events follow for the run.
func (e Event) Terminal() bool {
	switch e.Type {
	case SortCompleted, SortFailed, GenerateCompleted:
		return true
	}
	return false
}

// NewProgressEvent wraps a sorter progress snapshot.
func NewProgressEvent(runID string, p sorter.Progress) Event {
	return Event{
		Type:      SortProgress,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Progress:  &p,
		Fraction:  overall(p),
	}
}

// overall maps a stage-local fraction onto the whole sort. The split reads
// every byte once and the merge writes every byte once, so each gets half.
func overall(p sorter.Progress) float64 {
	switch p.Stage {
	case sorter.StageSplit:
		return p.Fraction() / 2
	case sorter.StageMerge:
		return 0.5 + p.Fraction()/2
	default:
		return 1
	}
}
