package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/binwatch/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		jsonOutput bool
		require    string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Display the version, git commit, build date, Go version, and platform.

With --require, exit non-zero unless the build satisfies a semver
constraint such as ">= 1.2". Deployment scripts use it to gate on a
minimum binwatch release.`,
		Args: cobra.NoArgs,
		// Override parent PersistentPreRunE, version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()

			if require != "" {
				ok, err := info.Satisfies(require)
				if err != nil {
					return &ExitError{Code: CodeFailure, Err: err}
				}

				if !ok {
					return &ExitError{
						Code: CodeFailure,
						Err:  fmt.Errorf("binwatch %s does not satisfy %q", info.Version, require),
					}
				}
			}

			if jsonOutput {
				j, err := info.JSON()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), j)

				return err
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())

			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	cmd.Flags().StringVar(&require, "require", "", "fail unless the version satisfies this semver constraint")

	return cmd
}
