package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/binwatch/internal/config"
	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/logging"
	"github.com/hupe1980/binwatch/internal/shutdown"
)

func newModeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show whether binwatch would own restarts",
		Long: `Mode resolves the watch target and runs host-mode detection without
installing a watcher. Use it to check a deployment's configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)

			mode, err := host.ParseMode(cfg.HostNotifications)
			if err != nil {
				return &ExitError{Code: CodeUsage, Err: err}
			}

			target, err := cfg.WatchTarget()
			if err != nil {
				return err
			}

			handle := shutdown.Detect(ctx, host.ConfiguredMode(mode), cfg.FallbackHandle, logging.FromContext(ctx))

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "watch target:       %s\n", target)
			fmt.Fprintf(w, "host notifications: %s\n", mode)
			fmt.Fprintf(w, "handle shutdowns:   %t\n", handle)

			return nil
		},
	}

	registerTargetFlags(cmd)

	return cmd
}
