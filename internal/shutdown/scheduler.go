package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/logging"
)

// State is the scheduler's position in its lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateWatching
	StateDebouncing
	StateRestartRequested
	// StateInert means the watcher could not be installed; no restart will
	// ever be scheduled.
	StateInert
	StateClosed
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWatching:
		return "watching"
	case StateDebouncing:
		return "debouncing"
	case StateRestartRequested:
		return "restart-requested"
	case StateInert:
		return "inert"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler.
type Options struct {
	// AppRoot is the application root. The watch target is AppRoot/BinDir
	// unless BinDir is absolute.
	AppRoot string

	// BinDir is the binary-assets directory.
	BinDir string

	// Debounce is the quiet period after the last qualifying event before
	// the host is asked to recycle.
	Debounce time.Duration

	// QuietSuffix excludes matching paths from activity logging. They still
	// qualify for scheduling.
	QuietSuffix string

	// FallbackHandle is used when the host notification mode cannot be read.
	FallbackHandle bool

	// RearmAfterRecycle re-opens the scheduler after a successful recycle.
	// Set it when the scheduler outlives the recycle, as with a supervised
	// child process.
	RearmAfterRecycle bool

	// ModeProvider reports the host's notification mode. Nil means absent.
	ModeProvider host.ModeProvider

	// Recycler performs the restart. Required.
	Recycler host.Recycler

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default scheduler options.
func DefaultOptions() Options {
	return Options{
		AppRoot:        ".",
		BinDir:         "bin",
		Debounce:       1500 * time.Millisecond,
		QuietSuffix:    ".log.resources",
		FallbackHandle: true,
		Logger:         slog.Default(),
	}
}

// Scheduler turns change bursts in the watched directory into at most one
// recycle request each.
type Scheduler struct {
	opts   Options
	logger *slog.Logger

	target string

	installed atomic.Bool
	installMu sync.Mutex
	watcher   *fsnotify.Watcher

	handleShutdowns atomic.Bool
	// inProgress is checked without the timer lock on the event path. A
	// racing event can at worst push the timer out once more; the commit
	// uses CompareAndSwap so only one recycle is requested.
	inProgress atomic.Bool
	state      atomic.Int32

	timerMu sync.Mutex
	timer   *time.Timer
	burst   string

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	wg        sync.WaitGroup
}

// New returns an uninitialized Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Recycler == nil {
		return nil, errors.New("shutdown: recycler must not be nil")
	}

	if opts.Debounce <= 0 {
		return nil, fmt.Errorf("shutdown: debounce must be positive, got %s", opts.Debounce)
	}

	if opts.BinDir == "" {
		opts.BinDir = "bin"
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dir := opts.BinDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(opts.AppRoot, dir)
	}

	target, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("shutdown: resolving watch target %q: %w", dir, err)
	}

	return &Scheduler{
		opts:   opts,
		logger: opts.Logger,
		target: target,
		done:   make(chan struct{}),
	}, nil
}

// Target returns the absolute path of the watched directory.
func (s *Scheduler) Target() string { return s.target }

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// HandlesShutdowns reports whether the scheduler owns restarts. It is false
// until Initialize has run.
func (s *Scheduler) HandlesShutdowns() bool { return s.handleShutdowns.Load() }

// Initialize detects the host notification mode and installs the watcher.
// Only the first call does anything; concurrent callers block until it is
// done. Failures are logged, never returned: without a watcher the scheduler
// is inert.
func (s *Scheduler) Initialize(ctx context.Context) {
	if s.installed.Load() {
		return
	}

	s.installMu.Lock()
	defer s.installMu.Unlock()

	if s.installed.Load() {
		return
	}

	defer s.installed.Store(true)

	if s.closed() {
		return
	}

	handle := Detect(ctx, s.opts.ModeProvider, s.opts.FallbackHandle, s.logger)
	s.handleShutdowns.Store(handle)

	if handle {
		s.timerMu.Lock()
		s.timer = time.AfterFunc(time.Hour, s.commit)
		s.timer.Stop()
		s.timerMu.Unlock()
	}

	if err := s.install(ctx); err != nil {
		s.logger.Info("could not add bin folder watcher",
			slog.String("path", s.target),
			slog.String("error", err.Error()),
		)

		s.timerMu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.timerMu.Unlock()

		s.state.Store(int32(StateInert))
	}
}

// HandleEvent logs ev and, if it qualifies, (re)arms the debounce timer. It
// never blocks on anything but a short internal lock.
func (s *Scheduler) HandleEvent(ev Event) {
	if ev.Kind == KindError {
		s.logger.Info("watcher activity",
			slog.String("kind", ev.Kind.String()),
			slog.Any("error", ev.Err),
		)

		return
	}

	if s.opts.QuietSuffix == "" || !strings.HasSuffix(ev.Path, s.opts.QuietSuffix) {
		attrs := []any{slog.String("kind", ev.Kind.String()), slog.String("path", ev.Path)}
		if ev.OldPath != "" {
			attrs = append(attrs, slog.String("oldPath", ev.OldPath))
		}

		s.logger.Info("watcher activity", attrs...)
	}

	if s.qualifies(ev.Path) {
		s.schedule()
	}
}

// Close stops the timer and the watcher. A recycle already running is not
// interrupted. Close is idempotent.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.timerMu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timerMu.Unlock()

		s.installMu.Lock()
		w := s.watcher
		s.installMu.Unlock()

		if w != nil {
			s.closeErr = w.Close()
		}

		s.wg.Wait()
		s.state.Store(int32(StateClosed))
	})

	return s.closeErr
}

func (s *Scheduler) qualifies(path string) bool {
	return s.handleShutdowns.Load() &&
		!s.inProgress.Load() &&
		hasPrefixFold(path, s.target)
}

// hasPrefixFold reports whether s begins with prefix under Unicode case
// folding. Runes are compared one at a time since folded pairs may differ in
// encoded length.
func hasPrefixFold(s, prefix string) bool {
	for prefix != "" {
		if s == "" {
			return false
		}

		pr, pn := utf8.DecodeRuneInString(prefix)
		sr, sn := utf8.DecodeRuneInString(s)

		if pr != sr && !strings.EqualFold(prefix[:pn], s[:sn]) {
			return false
		}

		prefix, s = prefix[pn:], s[sn:]
	}

	return true
}

// schedule pushes the recycle out to Debounce from now.
func (s *Scheduler) schedule() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer == nil || s.closed() {
		return
	}

	// Only a watching scheduler opens a window. An event that passed
	// qualifies just before a commit must not overwrite RestartRequested.
	if s.state.CompareAndSwap(int32(StateWatching), int32(StateDebouncing)) {
		s.burst = uuid.NewString()
	} else if s.State() != StateDebouncing {
		return
	}

	s.timer.Reset(s.opts.Debounce)

	s.logger.Log(context.Background(), logging.LevelTrace, "recycle scheduled",
		slog.String("burst", s.burst),
		slog.Duration("delay", s.opts.Debounce),
	)
}

// commit runs on the timer goroutine when a debounce window ends.
func (s *Scheduler) commit() {
	if !s.handleShutdowns.Load() || s.closed() {
		return
	}

	if !s.inProgress.CompareAndSwap(false, true) {
		return
	}

	s.timerMu.Lock()
	burst := s.burst
	s.timerMu.Unlock()

	s.state.Store(int32(StateRestartRequested))
	s.logger.Info("requesting host recycle", slog.String("burst", burst), slog.String("path", s.target))

	if err := s.recycle(); err != nil {
		s.inProgress.Store(false)
		s.state.Store(int32(StateWatching))
		s.logger.Error("host recycle failed", slog.String("burst", burst), slog.String("error", err.Error()))

		return
	}

	if s.opts.RearmAfterRecycle {
		s.inProgress.Store(false)
		s.state.Store(int32(StateWatching))
		s.logger.Info("host recycled", slog.String("burst", burst))
	}
}

func (s *Scheduler) recycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recycle panicked: %v", r)
		}
	}()

	return s.opts.Recycler.Recycle()
}

func (s *Scheduler) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
