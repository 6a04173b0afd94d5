package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/bigsort/internal/config"
	"github.com/Dicklesworthstone/bigsort/internal/events"
	"github.com/Dicklesworthstone/bigsort/internal/output"
	"github.com/Dicklesworthstone/bigsort/internal/report"
	"github.com/Dicklesworthstone/bigsort/internal/sorter"
	"github.com/Dicklesworthstone/bigsort/internal/util"
	"github.com/Dicklesworthstone/bigsort/internal/watcher"
)

var (
	watchOutbox    string
	watchPattern   string
	watchDebounce  time.Duration
	watchExisting  bool
	watchTempDir   string
	watchChunkSize config.ByteSize
	watchMemory    config.ByteSize
	watchReport    bool
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch INBOX",
		Short: "Sort every file that lands in a directory",
		Long: `Watch INBOX and sort each matching file into the outbox once writes to
it have stopped for the debounce interval. The sorted file keeps the
input's name. Files are sorted one at a time, each with its own chunk
directory. Stop with Ctrl+C.

Examples:
  bigsort watch ./incoming --outbox ./sorted
  bigsort watch ./incoming --outbox ./sorted --pattern '*.log' --existing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&watchOutbox, "outbox", "", "Directory for sorted files (default from config)")
	cmd.Flags().StringVar(&watchPattern, "pattern", "", "Glob matched against file names (default *.txt)")
	cmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a file is sorted (default 500ms)")
	cmd.Flags().BoolVar(&watchExisting, "existing", false, "Also sort files already in INBOX")
	cmd.Flags().StringVar(&watchTempDir, "tmpdir", "", "Parent directory for per-file chunk directories")
	cmd.Flags().Var(newByteSizeValue(&watchChunkSize, 1), "chunksize", "Chunk capacity: bytes or a size such as 8MiB")
	cmd.Flags().Var(newByteSizeValue(&watchMemory, config.MiB), "memory", "Memory budget: MiB, or a size such as 2GiB")
	cmd.Flags().BoolVar(&watchReport, "report", false, "Write a YAML run report per file")

	return cmd
}

func runWatch(cmd *cobra.Command, inbox string) error {
	f := newFormatter(cmd)
	fs := afero.NewOsFs()

	outbox := config.ExpandHome(cfg.Watch.Outbox)
	if watchOutbox != "" {
		outbox = watchOutbox
	}
	if outbox == "" {
		return fmt.Errorf("no outbox: pass --outbox or set watch.outbox")
	}
	same, err := sameDir(inbox, outbox)
	if err != nil {
		return err
	}
	if same {
		return fmt.Errorf("outbox must differ from the inbox")
	}
	if err := fs.MkdirAll(outbox, 0o755); err != nil {
		return fmt.Errorf("creating outbox: %w", err)
	}

	pattern := cfg.Watch.Pattern
	if watchPattern != "" {
		pattern = watchPattern
	}
	debounce := cfg.Watch.Debounce()
	if watchDebounce > 0 {
		debounce = watchDebounce
	}

	base := sortOptions{
		TempDir:   config.ExpandHome(cfg.Sort.TempDir),
		ChunkSize: cfg.Sort.ChunkSize,
		Memory:    cfg.Sort.MemoryLimit,
		Report:    cfg.Report.Enabled || watchReport,
		ReportDir: config.ExpandHome(cfg.Report.Dir),
	}
	if watchTempDir != "" {
		base.TempDir = watchTempDir
	}
	if base.TempDir == "" {
		base.TempDir = filepath.Join(os.TempDir(), sorter.DefaultTempDirName)
	}
	if cmd.Flags().Changed("chunksize") {
		if watchChunkSize == 0 {
			return fmt.Errorf("%w: --chunksize must be positive", sorter.ErrInvalidCapacity)
		}
		base.ChunkSize = watchChunkSize
	}
	if cmd.Flags().Changed("memory") {
		if watchMemory == 0 {
			return fmt.Errorf("%w: --memory must be positive", sorter.ErrInvalidMemoryLimit)
		}
		base.Memory = watchMemory
	}
	if base.ReportDir == "" {
		base.ReportDir = filepath.Join(outbox, ".bigsort", "reports")
	}

	w, err := watcher.New(inbox,
		watcher.WithDebounce(debounce),
		watcher.WithPattern(pattern),
		watcher.WithScanExisting(watchExisting),
		watcher.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	emitter := events.NewEmitter(nil, 0)
	defer emitter.Bus().SubscribeAll(logEvent)()
	emitter.Start()
	defer emitter.Close()

	if !f.IsJSON() {
		f.Info("watching %s for %s, sorted files go to %s", inbox, pattern, outbox)
	}

	job := &watchJob{fs: fs, outbox: outbox, base: base, emitter: emitter, formatter: f}
	return w.Run(cmd.Context(), job.handle)
}

func sameDir(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return filepath.Clean(absA) == filepath.Clean(absB), nil
}

func logEvent(ev events.Event) {
	switch ev.Type {
	case events.WatchQueued:
		logger.Info("file queued", "path", ev.Path, "run_id", ev.RunID)
	case events.SortCompleted:
		logger.Info("file sorted", "path", ev.Path, "run_id", ev.RunID)
	case events.SortFailed:
		logger.Error("sort failed", "path", ev.Path, "run_id", ev.RunID, "error", ev.Message)
	}
}

// watchJob sorts the files a watcher hands it.
type watchJob struct {
	fs        afero.Fs
	outbox    string
	base      sortOptions
	emitter   *events.Emitter
	formatter *output.Formatter
}

func (j *watchJob) handle(ctx context.Context, path string) error {
	opts := j.base
	opts.Input = path
	opts.Output = filepath.Join(j.outbox, filepath.Base(path))

	rep := report.New("watch", opts.Input, opts.Output)
	rep.MemoryLimit = opts.Memory.Int64()
	opts.TempDir = filepath.Join(j.base.TempDir, "job-"+rep.RunID[:8])

	j.emitter.Emit(events.Event{Type: events.WatchQueued, Timestamp: time.Now().UTC(), RunID: rep.RunID, Path: path})

	s, err := sorter.New(sorterOptions(j.fs, opts, nil)...)
	if err != nil {
		return err
	}
	res, err := s.Sort(ctx, opts.Input, opts.Output)
	done := events.Event{Type: events.SortCompleted, Timestamp: time.Now().UTC(), RunID: rep.RunID, Path: opts.Output, Fraction: 1}
	if err != nil {
		rep.Fail(err)
		done.Type = events.SortFailed
		done.Path = path
		done.Message = err.Error()
		done.Err = err
	} else {
		rep.Complete(res)
	}
	_ = j.emitter.EmitWait(ctx, done)

	var reportPath string
	if opts.Report {
		p, werr := report.NewWriter(j.fs, opts.ReportDir, 0, logger).Write(rep)
		if werr != nil {
			logger.Warn("writing report failed", "error", werr)
		}
		reportPath = p
	}

	if j.formatter.IsJSON() {
		resp := sortResponse{RunID: rep.RunID, Result: res, Report: reportPath, Error: rep.Error}
		if jerr := j.formatter.JSON(resp); jerr != nil {
			return jerr
		}
	} else if err != nil {
		j.formatter.Error("%s: %v", filepath.Base(path), err)
	} else {
		j.formatter.Success("%s: %d lines in %s", filepath.Base(path), res.Lines, util.FormatDuration(res.Total))
	}
	return err
}
