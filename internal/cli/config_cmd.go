package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/bigsort/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault(cfgFile)
			if err != nil {
				return err
			}
			f := newFormatter(cmd)
			return f.Result(map[string]string{"path": path}, func() error {
				f.Success("Created config file: %s", path)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after the config file and BIGSORT_*
environment variables are applied, as TOML (or JSON with --json).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd)
			return f.Result(cfg, func() error {
				return config.Print(cfg, cmd.OutOrStdout())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd)
			errs := config.Validate(cfg)
			problems := make([]string, len(errs))
			for i, err := range errs {
				problems[i] = err.Error()
			}
			err := f.Result(map[string]any{"valid": len(errs) == 0, "errors": problems}, func() error {
				if len(errs) == 0 {
					f.Success("Configuration is valid")
					return nil
				}
				for _, p := range problems {
					f.Error("%s", p)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				return fmt.Errorf("configuration has %d problem(s)", len(errs))
			}
			return nil
		},
	})

	return cmd
}
