// Package binwatch provides a public Go API for recycling an application when
// its binary-assets directory changes.
//
// It exposes the scheduler behind the binwatch CLI so a server can watch its
// own deployment directory in-process.
//
// Basic usage:
//
//	w, err := binwatch.Start(ctx, "/srv/app", binwatch.RecyclerFunc(func() error {
//	    return server.Shutdown(context.Background())
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
// With options:
//
//	w, err := binwatch.Start(ctx, "/srv/app", recycler,
//	    binwatch.WithBinDir("assemblies"),
//	    binwatch.WithDebounce(3*time.Second),
//	    binwatch.WithHostMode(binwatch.ModeDisabled),
//	)
package binwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/shutdown"
)

// Recycler asks the host to restart the application.
type Recycler = host.Recycler

// RecyclerFunc adapts a plain function to a Recycler.
type RecyclerFunc = host.RecyclerFunc

// ModeProvider reports whether the host restarts itself on file changes.
type ModeProvider = host.ModeProvider

// ModeProviderFunc adapts a plain function to a ModeProvider.
type ModeProviderFunc = host.ModeProviderFunc

// Mode is the host's own file-change notification mode.
type Mode = host.Mode

// Host notification modes.
const (
	ModeUnknown  = host.ModeUnknown
	ModeEnabled  = host.ModeEnabled
	ModeDisabled = host.ModeDisabled
)

// State is the watcher's position in its lifecycle.
type State = shutdown.State

// Watcher states.
const (
	StateUninitialized    = shutdown.StateUninitialized
	StateWatching         = shutdown.StateWatching
	StateDebouncing       = shutdown.StateDebouncing
	StateRestartRequested = shutdown.StateRestartRequested
	StateInert            = shutdown.StateInert
	StateClosed           = shutdown.StateClosed
)

// Option configures a Watcher.
type Option func(*shutdown.Options)

// WithBinDir sets the directory to watch, relative to the application root
// unless absolute (default: "bin").
func WithBinDir(dir string) Option { return func(o *shutdown.Options) { o.BinDir = dir } }

// WithDebounce sets the quiet period after the last change (default: 1.5s).
func WithDebounce(d time.Duration) Option { return func(o *shutdown.Options) { o.Debounce = d } }

// WithQuietSuffix sets the path suffix whose activity is not logged.
func WithQuietSuffix(suffix string) Option {
	return func(o *shutdown.Options) { o.QuietSuffix = suffix }
}

// WithModeProvider sets how the host's notification mode is queried.
func WithModeProvider(p ModeProvider) Option {
	return func(o *shutdown.Options) { o.ModeProvider = p }
}

// WithHostMode fixes the host's notification mode. ModeUnknown means the
// mode could not be determined, so WithFallbackHandle decides.
func WithHostMode(m Mode) Option {
	return func(o *shutdown.Options) { o.ModeProvider = host.ConfiguredMode(m) }
}

// WithFallbackHandle decides whether restarts are owned when the host mode
// cannot be determined (default: true).
func WithFallbackHandle(handle bool) Option {
	return func(o *shutdown.Options) { o.FallbackHandle = handle }
}

// WithRearm keeps watching after a successful recycle, for hosts that restart
// the application without restarting the process.
func WithRearm() Option { return func(o *shutdown.Options) { o.RearmAfterRecycle = true } }

// WithLogger sets the logger. Without it, logs are discarded.
func WithLogger(l *slog.Logger) Option { return func(o *shutdown.Options) { o.Logger = l } }

// Watcher recycles the application once a burst of changes in its bin
// directory has settled.
type Watcher struct {
	s *shutdown.Scheduler
}

// Start resolves the watch target under appRoot and installs the watcher.
// A missing bin directory is not an error: the Watcher is returned inert.
func Start(ctx context.Context, appRoot string, recycler Recycler, opts ...Option) (*Watcher, error) {
	if recycler == nil {
		return nil, errors.New("recycler must not be nil")
	}

	o := shutdown.DefaultOptions()
	o.AppRoot = appRoot
	o.Recycler = recycler
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, opt := range opts {
		opt(&o)
	}

	s, err := shutdown.New(o)
	if err != nil {
		return nil, err
	}

	s.Initialize(ctx)

	return &Watcher{s: s}, nil
}

// Target returns the absolute path being watched.
func (w *Watcher) Target() string { return w.s.Target() }

// State returns the current lifecycle state.
func (w *Watcher) State() State { return w.s.State() }

// HandlesShutdowns reports whether this Watcher owns restarts. It is false
// when the host restarts itself on file changes.
func (w *Watcher) HandlesShutdowns() bool { return w.s.HandlesShutdowns() }

// Close stops watching. A recycle already running is not interrupted.
func (w *Watcher) Close() error { return w.s.Close() }
