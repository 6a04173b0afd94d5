package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/bigsort/internal/output"
	"github.com/Dicklesworthstone/bigsort/internal/sorter"
	"github.com/Dicklesworthstone/bigsort/internal/util"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify INPUT OUTPUT",
		Short: "Check that OUTPUT is INPUT sorted",
		Long: `Check that OUTPUT is in ascending byte order and holds exactly the
lines of INPUT, duplicates included. Both files are read once; neither
is loaded into memory.

Examples:
  bigsort verify big.txt result.txt
  bigsort verify big.txt result.txt --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args[0], args[1])
		},
	}
}

func runVerify(cmd *cobra.Command, input, out string) error {
	f := newFormatter(cmd)
	v, err := sorter.Verify(afero.NewOsFs(), input, out)
	if err != nil {
		return err
	}
	err = f.Result(v, func() error {
		t := f.Table("FILE", "LINES", "BYTES", "SORTED")
		for _, st := range []sorter.FileStats{v.Input, v.Output} {
			t.AddRow(output.TruncatePath(st.Path, 40), fmt.Sprint(st.Lines), util.FormatBytes(st.Bytes), sortedLabel(st))
		}
		t.Render()
		f.Line()
		if v.OK() {
			f.Success("%s is a sorted permutation of %s", out, input)
		} else {
			f.Error("%s", describeVerification(v))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !v.OK() {
		return fmt.Errorf("verification failed: %s", describeVerification(v))
	}
	return nil
}

func sortedLabel(st sorter.FileStats) string {
	if st.Sorted {
		return "yes"
	}
	return fmt.Sprintf("no (line %d)", st.FirstDisorder)
}

// describeVerification names every way the output differs from a sorted
// copy of the input.
func describeVerification(v sorter.Verification) string {
	var problems []string
	if !v.Output.Sorted {
		problems = append(problems, fmt.Sprintf("output is out of order at line %d", v.Output.FirstDisorder))
	}
	switch {
	case v.Input.Lines != v.Output.Lines:
		problems = append(problems, fmt.Sprintf("output has %d lines, input has %d", v.Output.Lines, v.Input.Lines))
	case v.Input.Fingerprint != v.Output.Fingerprint:
		problems = append(problems, "output lines differ from input lines")
	}
	if len(problems) == 0 {
		return "ok"
	}
	return strings.Join(problems, "; ")
}
