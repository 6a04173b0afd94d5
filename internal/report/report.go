// Package report records sort runs as YAML files.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/bigsort/internal/sorter"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Report describes one sort run.
type Report struct {
	RunID     string    `yaml:"run_id" json:"run_id"`
	Command   string    `yaml:"command" json:"command"`
	Status    string    `yaml:"status" json:"status"`
	Error     string    `yaml:"error,omitempty" json:"error,omitempty"`
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	Host      string    `yaml:"host,omitempty" json:"host,omitempty"`

	Input       string `yaml:"input" json:"input"`
	Output      string `yaml:"output" json:"output"`
	TempDir     string `yaml:"temp_dir,omitempty" json:"temp_dir,omitempty"`
	Capacity    int64  `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	MemoryLimit int64  `yaml:"memory_limit,omitempty" json:"memory_limit,omitempty"`
	FreeMemory  int64  `yaml:"free_memory,omitempty" json:"free_memory,omitempty"`

	Lines      int64              `yaml:"lines" json:"lines"`
	Bytes      int64              `yaml:"bytes" json:"bytes"`
	Chunks     []sorter.ChunkInfo `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	ChunksKept bool               `yaml:"chunks_kept" json:"chunks_kept"`

	SplitDuration time.Duration `yaml:"split_duration" json:"split_duration"`
	MergeDuration time.Duration `yaml:"merge_duration" json:"merge_duration"`
	Total         time.Duration `yaml:"total" json:"total"`

	Verification *sorter.Verification `yaml:"verification,omitempty" json:"verification,omitempty"`
}

// New starts a report for a run of command with a fresh run id.
func New(command, input, output string) *Report {
	host, _ := os.Hostname()
	return &Report{
		RunID:     uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		Host:      host,
		Input:     input,
		Output:    output,
	}
}

// Complete records a successful sort.
func (r *Report) Complete(res *sorter.Result) *Report {
	r.Status = StatusOK
	r.Error = ""
	r.TempDir = res.TempDir
	r.Capacity = res.Capacity
	r.Lines = res.Lines
	r.Bytes = res.Bytes
	r.Chunks = res.Chunks
	r.ChunksKept = res.ChunksKept
	r.SplitDuration = res.SplitDuration
	r.MergeDuration = res.MergeDuration
	r.Total = res.Total
	return r
}

// Fail records a failed sort.
func (r *Report) Fail(err error) *Report {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.Total = time.Since(r.StartedAt)
	return r
}

// Validate checks the fields every stored report must carry.
func (r *Report) Validate() []error {
	var errs []error
	if _, err := uuid.Parse(r.RunID); err != nil {
		errs = append(errs, fmt.Errorf("run_id: %w", err))
	}
	if r.Command == "" {
		errs = append(errs, fmt.Errorf("command: must not be empty"))
	}
	switch r.Status {
	case StatusOK, StatusFailed:
	default:
		errs = append(errs, fmt.Errorf("status: must be %q or %q, got %q", StatusOK, StatusFailed, r.Status))
	}
	if r.Status == StatusFailed && r.Error == "" {
		errs = append(errs, fmt.Errorf("error: required when status is %q", StatusFailed))
	}
	return errs
}
