package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/binwatch/internal/config"
	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/logging"
	"github.com/hupe1980/binwatch/internal/shutdown"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags] [-- command [args...]]",
		Short: "Watch the bin directory and recycle the application on change",
		Long: `Watch monitors <app-root>/<bin-dir> recursively. Once a burst of
changes has been quiet for --debounce, the application is recycled.

Without a command, binwatch exits with code 3 so the process manager
that started it (systemd, a container runtime) can start the application
again. With a command after "--", binwatch runs it as a child and
restarts it in place; the child gets --grace-period to exit after
SIGTERM.

If --host-notifications is "enabled" the host restarts itself on file
changes and binwatch only logs activity.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args)
		},
	}

	registerTargetFlags(cmd)

	f := cmd.Flags()
	f.Duration("debounce", config.DefaultDebounce, "quiet period before the application is recycled")
	f.String("quiet-suffix", config.DefaultQuietSuffix, "do not log activity for paths with this suffix")
	f.Duration("grace-period", config.DefaultGracePeriod, "time a supervised command gets to exit after SIGTERM")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	mode, err := host.ParseMode(cfg.HostNotifications)
	if err != nil {
		return &ExitError{Code: CodeUsage, Err: err}
	}

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)

	var (
		recycler   host.Recycler
		supervisor *host.Supervisor
	)

	if len(args) > 0 {
		supervisor, err = host.NewSupervisor(host.SupervisorOptions{
			Command:     args[0],
			Args:        args[1:],
			Dir:         cfg.AppRoot,
			GracePeriod: cfg.GracePeriod,
			Stdout:      cmd.OutOrStdout(),
			Stderr:      cmd.ErrOrStderr(),
			Logger:      logger,
		})
		if err != nil {
			return &ExitError{Code: CodeUsage, Err: err}
		}

		recycler = supervisor
	} else {
		recycler = host.NewExitRecycler(cancel)
	}

	sched, err := shutdown.New(shutdown.Options{
		AppRoot:           cfg.AppRoot,
		BinDir:            cfg.BinDir,
		Debounce:          cfg.Debounce,
		QuietSuffix:       cfg.QuietSuffix,
		FallbackHandle:    cfg.FallbackHandle,
		RearmAfterRecycle: supervisor != nil,
		ModeProvider:      host.ConfiguredMode(mode),
		Recycler:          recycler,
		Logger:            logger,
	})
	if err != nil {
		return &ExitError{Code: CodeUsage, Err: err}
	}

	g, gctx := errgroup.WithContext(runCtx)

	if supervisor != nil {
		g.Go(func() error {
			return supervisor.Run(gctx)
		})
	}

	g.Go(func() error {
		sched.Initialize(gctx)

		if !cfg.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (state=%s, debounce=%s, handle-shutdowns=%t)\n",
				sched.Target(), sched.State(), cfg.Debounce, sched.HandlesShutdowns())
		}

		<-gctx.Done()

		return sched.Close()
	})

	waitErr := g.Wait()

	if host.RecycleRequested(runCtx) {
		return &ExitError{Code: CodeRecycle, Err: errors.New("recycle requested: binaries changed")}
	}

	if waitErr != nil {
		return fmt.Errorf("watch: %w", waitErr)
	}

	return nil
}
