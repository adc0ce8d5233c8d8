package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/binwatch/internal/config"
)

func newConfigCommand() *cobra.Command {
	var showDiff bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration after merging defaults, the config
file, BINWATCH_* environment variables, and flags.

With --diff only the differences from the built-in defaults are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			w := cmd.OutOrStdout()

			if showDiff {
				diff, err := config.Diff(cfg)
				if err != nil {
					return err
				}

				if diff == "" {
					_, err = fmt.Fprintln(w, "configuration matches defaults")

					return err
				}

				_, err = fmt.Fprint(w, diff)

				return err
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}

			_, err = w.Write(data)

			return err
		},
	}

	registerTargetFlags(cmd)
	cmd.Flags().BoolVar(&showDiff, "diff", false, "show only values that differ from the defaults")

	return cmd
}
