// Package cli implements the cobra command tree for binwatch.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/binwatch/internal/config"
	"github.com/hupe1980/binwatch/internal/logging"
)

// Process exit codes.
const (
	CodeOK      = 0
	CodeFailure = 1
	CodeUsage   = 2
	// CodeRecycle tells an outer supervisor to start the application again.
	CodeRecycle = 3
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code != CodeRecycle {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}

			return exitErr.Code
		}

		fmt.Fprintln(os.Stderr, "Error:", err)

		return CodeFailure
	}

	return CodeOK
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "binwatch",
		Short: "Recycle an application when its binaries change",
		Long: `binwatch watches an application's binary-assets directory and
restarts the application once a deployment has settled.

Bursts of file changes (a multi-file copy, an upgrade package) are
debounced into a single restart request. If the hosting runtime already
restarts itself on file changes, binwatch stays passive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: CodeUsage, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .binwatch.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: trace, debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.String("log-file", "", "write logs to a rotating file instead of stderr")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: CodeUsage, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newWatchCommand(),
		newModeCommand(),
		newConfigCommand(),
		newCompletionCommand(),
	)

	return cmd
}

// registerTargetFlags adds the flags that locate the watch target and decide
// who owns restarts. They are shared by watch and mode.
func registerTargetFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("app-root", ".", "application root directory")
	f.String("bin-dir", config.DefaultBinDir, "binary-assets directory, relative to --app-root")
	f.String("host-notifications", config.HostNotificationsUnknown,
		"host's own file-change restarts: enabled, disabled, unknown")
	f.Bool("fallback-handle", true, "own restarts when the host mode cannot be determined")

	_ = cmd.RegisterFlagCompletionFunc("host-notifications", cobra.FixedCompletions(
		[]string{config.HostNotificationsEnabled, config.HostNotificationsDisabled, config.HostNotificationsUnknown},
		cobra.ShellCompDirectiveNoFileComp,
	))
}
