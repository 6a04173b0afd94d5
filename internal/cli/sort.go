package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/bigsort/internal/config"
	"github.com/Dicklesworthstone/bigsort/internal/events"
	"github.com/Dicklesworthstone/bigsort/internal/memlimit"
	"github.com/Dicklesworthstone/bigsort/internal/output"
	"github.com/Dicklesworthstone/bigsort/internal/report"
	"github.com/Dicklesworthstone/bigsort/internal/sorter"
	"github.com/Dicklesworthstone/bigsort/internal/tui"
	"github.com/Dicklesworthstone/bigsort/internal/util"
)

var errCanceled = errors.New("sort canceled")

var (
	sortFile       string
	sortTempDir    string
	sortChunkSize  config.ByteSize
	sortOutput     string
	sortKeepChunks bool
	sortVerbose    bool
	sortMemory     config.ByteSize
	sortHardLimit  bool
	sortReport     bool
	sortReportDir  string
	sortVerify     bool
)

// sortOptions is the effective configuration of one sort after flags,
// environment and config file are merged.
type sortOptions struct {
	Input      string
	Output     string
	TempDir    string
	ChunkSize  config.ByteSize
	Memory     config.ByteSize
	HardLimit  bool
	KeepChunks bool
	Verbose    bool
	Report     bool
	ReportDir  string
	Verify     bool
}

// sortResponse is the JSON shape of a finished sort.
type sortResponse struct {
	RunID        string               `json:"run_id"`
	Result       *sorter.Result       `json:"result"`
	Report       string               `json:"report,omitempty"`
	Verification *sorter.Verification `json:"verification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func newSortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort [FILE]",
		Short: "Sort a text file line by line",
		Long: `Sort the lines of a text file into ascending byte order.

The input is split into sorted chunk files no larger than the chunk
capacity, then the chunks are merged into the output. The output is
written to a temporary file and renamed into place when complete.

Chunk capacity comes from --chunksize, else from --memory and the average
line length of the input, else 1MiB.

Examples:
  bigsort sort --file big.txt
  bigsort sort big.txt --output sorted.txt --verbose
  bigsort sort big.txt --memory 256 --hard-limit
  bigsort sort big.txt --tmpdir /var/tmp/chunks --tmpfiles`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveSortOptions(cmd, args)
			if err != nil {
				return err
			}
			return runSort(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&sortFile, "file", "f", "", "Input file")
	cmd.Flags().StringVar(&sortTempDir, "tmpdir", "", "Directory for chunk files (default <system temp>/bigsort)")
	cmd.Flags().Var(newByteSizeValue(&sortChunkSize, 1), "chunksize", "Chunk capacity: bytes or a size such as 8MiB")
	cmd.Flags().StringVarP(&sortOutput, "output", "o", "", "Output file (default result.txt)")
	cmd.Flags().BoolVar(&sortKeepChunks, "tmpfiles", false, "Keep chunk files after sorting")
	cmd.Flags().BoolVarP(&sortVerbose, "verbose", "v", false, "Show progress while sorting")
	cmd.Flags().Var(newByteSizeValue(&sortMemory, config.MiB), "memory", "Memory budget: MiB, or a size such as 2GiB")
	cmd.Flags().BoolVar(&sortHardLimit, "hard-limit", false, "Enforce --memory as an address-space limit (unix only)")
	cmd.Flags().BoolVar(&sortReport, "report", false, "Write a YAML run report")
	cmd.Flags().StringVar(&sortReportDir, "report-dir", "", "Directory for run reports (default .bigsort/reports beside the output)")
	cmd.Flags().BoolVar(&sortVerify, "verify", false, "Check that the output is a sorted permutation of the input")

	return cmd
}

func resolveSortOptions(cmd *cobra.Command, args []string) (sortOptions, error) {
	flags := cmd.Flags()
	opts := sortOptions{
		Input:      sortFile,
		Output:     cfg.Sort.Output,
		TempDir:    config.ExpandHome(cfg.Sort.TempDir),
		ChunkSize:  cfg.Sort.ChunkSize,
		Memory:     cfg.Sort.MemoryLimit,
		HardLimit:  cfg.Sort.HardLimit,
		KeepChunks: cfg.Sort.KeepChunks,
		Verbose:    sortVerbose,
		Report:     cfg.Report.Enabled,
		ReportDir:  config.ExpandHome(cfg.Report.Dir),
		Verify:     sortVerify,
	}

	if len(args) == 1 {
		if sortFile != "" && sortFile != args[0] {
			return opts, fmt.Errorf("input given twice: %q and --file %q", args[0], sortFile)
		}
		opts.Input = args[0]
	}
	if opts.Input == "" {
		return opts, fmt.Errorf("%w: pass FILE or --file", sorter.ErrNoInput)
	}

	if sortOutput != "" {
		opts.Output = sortOutput
	}
	if sortTempDir != "" {
		opts.TempDir = sortTempDir
	}
	if flags.Changed("chunksize") {
		if sortChunkSize == 0 {
			return opts, fmt.Errorf("%w: --chunksize must be positive", sorter.ErrInvalidCapacity)
		}
		opts.ChunkSize = sortChunkSize
	}
	if flags.Changed("memory") {
		if sortMemory == 0 {
			return opts, fmt.Errorf("%w: --memory must be positive", sorter.ErrInvalidMemoryLimit)
		}
		opts.Memory = sortMemory
	}
	if flags.Changed("hard-limit") {
		opts.HardLimit = sortHardLimit
	}
	if flags.Changed("tmpfiles") {
		opts.KeepChunks = sortKeepChunks
	}
	if flags.Changed("report") {
		opts.Report = sortReport
	}
	if sortReportDir != "" {
		opts.ReportDir = sortReportDir
		opts.Report = true
	}

	if opts.ChunkSize < 0 {
		return opts, fmt.Errorf("%w: --chunksize %d", sorter.ErrInvalidCapacity, opts.ChunkSize)
	}
	if opts.Memory < 0 {
		return opts, fmt.Errorf("%w: --memory %d", sorter.ErrInvalidMemoryLimit, opts.Memory)
	}
	if opts.HardLimit && opts.Memory == 0 {
		return opts, fmt.Errorf("--hard-limit requires --memory")
	}
	if opts.ReportDir == "" {
		opts.ReportDir = filepath.Join(filepath.Dir(opts.Output), ".bigsort", "reports")
	}
	return opts, nil
}

func runSort(cmd *cobra.Command, opts sortOptions) error {
	f := newFormatter(cmd)
	fs := afero.NewOsFs()

	rep := report.New("sort", opts.Input, opts.Output)
	rep.MemoryLimit = opts.Memory.Int64()
	if free, err := memlimit.Free(); err == nil {
		rep.FreeMemory = free
	}

	if opts.Memory > 0 {
		if err := memlimit.Apply(opts.Memory.Int64(), opts.HardLimit); err != nil {
			if !errors.Is(err, memlimit.ErrUnsupported) {
				return fmt.Errorf("applying memory limit: %w", err)
			}
			logger.Warn("address-space limit not supported on this platform", "memory", opts.Memory.String())
		}
		defer memlimit.Reset()
	}

	if opts.Verbose && !f.IsJSON() {
		free := "unknown"
		if rep.FreeMemory > 0 {
			free = util.FormatBytes(rep.FreeMemory)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "free memory: %s, chunk size: %s\n", free, describeCapacity(opts))
	}

	res, err := sortWithProgress(cmd, f, fs, opts, rep.RunID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = errCanceled
		}
		if opts.Report {
			rep.Fail(err)
			if _, werr := report.NewWriter(fs, opts.ReportDir, 0, logger).Write(rep); werr != nil {
				logger.Warn("writing report failed", "error", werr)
			}
		}
		return err
	}
	rep.Complete(res)

	if opts.Verify {
		v, err := sorter.Verify(fs, opts.Input, opts.Output)
		if err != nil {
			return fmt.Errorf("verifying output: %w", err)
		}
		rep.Verification = &v
	}

	var reportPath string
	if opts.Report {
		reportPath, err = report.NewWriter(fs, opts.ReportDir, 0, logger).Write(rep)
		if err != nil {
			logger.Warn("writing report failed", "error", err)
		}
	}

	resp := sortResponse{
		RunID:        rep.RunID,
		Result:       res,
		Report:       reportPath,
		Verification: rep.Verification,
	}
	if err := f.Result(resp, func() error { return renderSortResult(f, resp) }); err != nil {
		return err
	}
	if rep.Verification != nil && !rep.Verification.OK() {
		return fmt.Errorf("verification failed: %s", describeVerification(*rep.Verification))
	}
	return nil
}

func describeCapacity(opts sortOptions) string {
	switch {
	case opts.ChunkSize > 0:
		return opts.ChunkSize.Human()
	case opts.Memory > 0:
		return "derived from " + opts.Memory.Human() + " memory"
	default:
		return util.FormatBytes(sorter.DefaultChunkSize)
	}
}

// sortWithProgress runs the sort in one goroutine and, when verbose on a
// terminal, the progress view in another.
func sortWithProgress(cmd *cobra.Command, f *output.Formatter, fs afero.Fs, opts sortOptions, runID string) (*sorter.Result, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	emitter := events.NewEmitter(nil, 0)
	bus := emitter.Bus()

	showTUI := opts.Verbose && !f.IsJSON() && output.IsTerminal(cmd.OutOrStdout())
	var feed *tui.Feed
	switch {
	case showTUI:
		feed = tui.NewFeed(bus)
		defer feed.Close()
	case opts.Verbose && !f.IsJSON():
		defer bus.Subscribe(events.SortProgress, progressLogger(cmd.ErrOrStderr()))()
	}

	s, err := sorter.New(sorterOptions(fs, opts, func(p sorter.Progress) {
		emitter.Emit(events.NewProgressEvent(runID, p))
	})...)
	if err != nil {
		return nil, err
	}

	emitter.Start()
	defer emitter.Close()

	g, gctx := errgroup.WithContext(ctx)
	var res *sorter.Result
	g.Go(func() error {
		var err error
		res, err = s.Sort(gctx, opts.Input, opts.Output)
		ev := events.Event{
			Type:      events.SortCompleted,
			Timestamp: time.Now().UTC(),
			RunID:     runID,
			Path:      opts.Output,
			Fraction:  1,
		}
		if err != nil {
			ev.Type = events.SortFailed
			ev.Message = err.Error()
			ev.Err = err
			ev.Fraction = 0
		}
		_ = emitter.EmitWait(context.Background(), ev)
		return err
	})
	if showTUI {
		model := tui.New(opts.Input, feed, f.Styles(), output.ColorEnabled(cmd.OutOrStdout(), noColor), cancel)
		g.Go(func() error {
			if _, err := tui.Run(gctx, cmd.OutOrStdout(), model); err != nil {
				return fmt.Errorf("progress view: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func sorterOptions(fs afero.Fs, opts sortOptions, progress sorter.ProgressFunc) []sorter.Option {
	so := []sorter.Option{
		sorter.WithFs(fs),
		sorter.WithChunkSize(opts.ChunkSize.Int64()),
		sorter.WithMemoryLimit(opts.Memory.Int64()),
		sorter.WithKeepChunks(opts.KeepChunks),
		sorter.WithLogger(logger),
		sorter.WithProgress(progress),
	}
	if opts.TempDir != "" {
		so = append(so, sorter.WithTempDir(opts.TempDir))
	}
	return so
}

// progressLogger prints one line per chunk while splitting and one per
// merge report, for verbose runs without a terminal.
func progressLogger(w io.Writer) events.Handler {
	return func(ev events.Event) {
		p := ev.Progress
		if p == nil {
			return
		}
		switch p.Stage {
		case sorter.StageSplit:
			if p.Chunks == 0 {
				return
			}
			fmt.Fprintf(w, "chunk %d of ~%d written, ~%s remaining\n",
				p.Chunks, max(p.EstimatedChunks, p.Chunks), util.FormatDuration(p.Remaining))
		case sorter.StageMerge:
			if p.Lines == 0 {
				fmt.Fprintf(w, "%s created in %s, merging\n",
					output.CountStr(p.Chunks, "chunk", "chunks"), util.FormatDuration(p.Elapsed))
				return
			}
			fmt.Fprintf(w, "merged %d of %d lines\n", p.Lines, p.TotalLines)
		}
	}
}

func renderSortResult(f *output.Formatter, resp sortResponse) error {
	res := resp.Result
	width := f.Width() - 14
	f.Success("Sorted %s into %s", output.CountStr(int(res.Lines), "line", "lines"), output.TruncatePath(res.Output, width))
	f.KeyValues(
		output.KV{Key: "input", Value: output.TruncatePath(res.Input, width)},
		output.KV{Key: "size", Value: util.FormatBytes(res.Bytes)},
		output.KV{Key: "chunks", Value: fmt.Sprintf("%d × %s", len(res.Chunks), util.FormatBytes(res.Capacity))},
		output.KV{Key: "split", Value: util.FormatDuration(res.SplitDuration)},
		output.KV{Key: "merge", Value: util.FormatDuration(res.MergeDuration)},
		output.KV{Key: "total", Value: util.FormatDuration(res.Total)},
		output.KV{Key: "rate", Value: util.FormatRate(res.Bytes, res.Total)},
	)
	if res.ChunksKept {
		f.Line()
		t := f.Table("CHUNK", "LINES", "BYTES")
		for _, c := range res.Chunks {
			t.AddRow(c.Path, fmt.Sprint(c.Lines), util.FormatBytes(c.Bytes))
		}
		t.Render()
	}
	if v := resp.Verification; v != nil {
		if v.OK() {
			f.Success("Verified: output is a sorted permutation of the input")
		} else {
			f.Error("Verification failed: %s", describeVerification(*v))
		}
	}
	if resp.Report != "" {
		f.Info("report: %s", resp.Report)
	}
	return nil
}
