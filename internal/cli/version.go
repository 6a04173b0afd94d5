package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionResponse describes the running binary.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	BuiltBy   string `json:"built_by"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, short)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

func runVersion(cmd *cobra.Command, short bool) error {
	resp := VersionResponse{
		Version:   Version,
		Commit:    Commit,
		BuiltAt:   Date,
		BuiltBy:   BuiltBy,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	f := newFormatter(cmd)
	if f.IsJSON() {
		return f.JSON(resp)
	}

	w := cmd.OutOrStdout()
	if short {
		fmt.Fprintln(w, resp.Version)
		return nil
	}
	fmt.Fprintf(w, "bigsort version %s\n", resp.Version)
	fmt.Fprintf(w, "  commit:    %s\n", resp.Commit)
	fmt.Fprintf(w, "  built:     %s\n", resp.BuiltAt)
	fmt.Fprintf(w, "  builder:   %s\n", resp.BuiltBy)
	fmt.Fprintf(w, "  go:        %s\n", resp.GoVersion)
	fmt.Fprintf(w, "  platform:  %s\n", resp.Platform)
	return nil
}
