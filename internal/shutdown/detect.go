package shutdown

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/logging"
)

// Detect decides whether binwatch must own restarts. It returns false only
// when the host reports that it restarts itself on file changes. A missing
// provider or an unknown mode means the host does not, so Detect returns
// true. When the provider fails or panics, fallback is returned.
//
// Everything Detect logs is informational; it never fails.
func Detect(ctx context.Context, provider host.ModeProvider, fallback bool, logger *slog.Logger) (handle bool) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Info("host notification mode detection failed",
				slog.String("error", fmt.Sprint(r)),
				slog.Bool("handleShutdowns", fallback),
			)

			handle = fallback
		}
	}()

	if provider == nil {
		logger.Info("host notification mode provider absent", slog.Bool("handleShutdowns", true))
		return true
	}

	mode, err := provider.QueryMode(ctx)
	if err != nil {
		logger.Info("host notification mode detection failed",
			slog.String("error", err.Error()),
			slog.Bool("handleShutdowns", fallback),
		)

		return fallback
	}

	handle = mode != host.ModeEnabled

	logger.Info("host notification mode",
		slog.String("mode", mode.String()),
		slog.Bool("handleShutdowns", handle),
	)

	if c, ok := provider.(host.WatcherCounter); ok {
		logCounters(ctx, c, logger)
	}

	return handle
}

// logCounters traces the host's active monitor count. A failing counter is
// logged and never changes the detected mode.
func logCounters(ctx context.Context, c host.WatcherCounter, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log(ctx, logging.LevelTrace, "host directory monitors unavailable",
				slog.String("error", fmt.Sprint(r)),
			)
		}
	}()

	logger.Log(ctx, logging.LevelTrace, "host directory monitors", slog.Int("active", c.ActiveWatchers()))
}
