package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/bigsort/internal/config"
	"github.com/Dicklesworthstone/bigsort/internal/events"
	"github.com/Dicklesworthstone/bigsort/internal/generator"
	"github.com/Dicklesworthstone/bigsort/internal/output"
	"github.com/Dicklesworthstone/bigsort/internal/util"
)

var (
	genLines   int
	genLength  int
	genOutput  string
	genRandom  bool
	genVerbose bool
	genSeed    uint64
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a file of random lines for testing",
		Long: `Generate a file of random ASCII letters, one string per line.

Each line is --len bytes including the newline. With --rnd each line
holds between 1 and len-2 letters instead. The file name defaults to
sort_<num>_<len>_<unix time>.txt.

Examples:
  bigsort generate --num 1000000 --len 100
  bigsort generate --num 50000 --len 4096 --rnd --output wide.txt
  bigsort generate --num 10 --seed 42     # reproducible`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	cmd.Flags().IntVarP(&genLines, "num", "n", 0, "Number of lines (default 10000)")
	cmd.Flags().IntVarP(&genLength, "len", "l", 0, "Line length in bytes including the newline (default 100)")
	cmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output file (default sort_<num>_<len>_<time>.txt)")
	cmd.Flags().BoolVarP(&genRandom, "rnd", "r", false, "Randomize line lengths")
	cmd.Flags().BoolVarP(&genVerbose, "verbose", "v", false, "Report progress")
	cmd.Flags().Uint64Var(&genSeed, "seed", 0, "Random seed (default from the clock)")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	f := newFormatter(cmd)
	opts := generator.Options{
		Lines:        cfg.Generate.Lines,
		Length:       cfg.Generate.LineLength,
		RandomLength: cfg.Generate.RandomLength,
		Seed:         genSeed,
	}
	if cmd.Flags().Changed("num") {
		opts.Lines = genLines
	}
	if cmd.Flags().Changed("len") {
		opts.Length = genLength
	}
	if cmd.Flags().Changed("rnd") {
		opts.RandomLength = genRandom
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	path := genOutput
	if path == "" {
		path = generator.DefaultName(opts.Lines, opts.Length, time.Now())
		if dir := config.ExpandHome(cfg.Generate.Dir); dir != "" {
			path = filepath.Join(dir, path)
		}
	}

	emitter := events.NewEmitter(nil, 0)
	if genVerbose && !f.IsJSON() {
		emitter.Bus().SubscribeAll(generateLogger(cmd.ErrOrStderr()))
	}
	emitter.Start()
	defer emitter.Close()

	gen := generator.New(afero.NewOsFs(), logger)
	stats, err := gen.WriteFile(cmd.Context(), path, opts, func(p generator.Progress) {
		emitter.Emit(events.Event{
			Type:      events.GenerateProgress,
			Timestamp: time.Now().UTC(),
			Path:      path,
			Fraction:  float64(p.Lines) / float64(max(p.Total, 1)),
			Message:   fmt.Sprintf("generated %d lines, ~%s remaining", p.Lines, util.FormatDuration(p.Remaining)),
		})
	})
	if err != nil {
		return err
	}
	emitter.Emit(events.Event{Type: events.GenerateCompleted, Timestamp: time.Now().UTC(), Path: path, Fraction: 1})

	return f.Result(stats, func() error {
		f.Success("Generated %s with %s", output.TruncatePath(stats.Path, f.Width()/2), output.CountStr(stats.Lines, "line", "lines"))
		f.KeyValues(
			output.KV{Key: "size", Value: util.FormatBytes(stats.Bytes)},
			output.KV{Key: "seed", Value: fmt.Sprint(stats.Seed)},
			output.KV{Key: "took", Value: util.FormatDuration(stats.Duration)},
		)
		return nil
	})
}

func generateLogger(w io.Writer) events.Handler {
	return func(ev events.Event) {
		if ev.Type == events.GenerateProgress && ev.Message != "" {
			fmt.Fprintln(w, ev.Message)
		}
	}
}
