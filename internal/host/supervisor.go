package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ErrSupervisorStopped is returned by Recycle after Stop.
var ErrSupervisorStopped = errors.New("supervisor stopped")

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Command is the executable to run. Required.
	Command string

	// Args are passed to Command.
	Args []string

	// Dir is the child's working directory. Empty means the current one.
	Dir string

	// GracePeriod is how long the child gets between SIGTERM and SIGKILL.
	GracePeriod time.Duration

	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Supervisor is a host whose execution domain is a child process. Recycling
// stops the child and starts a fresh one.
type Supervisor struct {
	opts SupervisorOptions

	mu      sync.Mutex
	child   *child
	stopped bool
}

type child struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NewSupervisor validates opts and returns an idle Supervisor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Command == "" {
		return nil, errors.New("supervisor: command must not be empty")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Supervisor{opts: opts}, nil
}

// Start launches the child process.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSupervisorStopped
	}

	if s.child != nil {
		select {
		case <-s.child.done:
		default:
			return fmt.Errorf("supervisor: %s already running (pid %d)", s.opts.Command, s.child.cmd.Process.Pid)
		}
	}

	return s.startLocked()
}

// Recycle stops the current child, if any, and starts a new one.
func (s *Supervisor) Recycle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSupervisorStopped
	}

	if s.child != nil {
		s.stopLocked(s.child)
	}

	if err := s.startLocked(); err != nil {
		return fmt.Errorf("restarting %s: %w", s.opts.Command, err)
	}

	return nil
}

// Stop terminates the child and prevents further restarts.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	if s.child != nil {
		s.stopLocked(s.child)
	}
}

// Run starts the child and keeps it until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()

	return nil
}

// PID returns the current child's process id, or 0 when none is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child == nil {
		return 0
	}

	select {
	case <-s.child.done:
		return 0
	default:
		return s.child.cmd.Process.Pid
	}
}

func (s *Supervisor) startLocked() error {
	cmd := exec.Command(s.opts.Command, s.opts.Args...) //nolint:gosec
	cmd.Dir = s.opts.Dir
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.opts.Command, err)
	}

	c := &child{cmd: cmd, done: make(chan struct{})}
	s.child = c

	pid := cmd.Process.Pid
	s.opts.Logger.Info("supervised command started",
		slog.String("command", s.opts.Command),
		slog.Int("pid", pid),
	)

	go func() {
		defer close(c.done)

		attrs := []any{slog.String("command", s.opts.Command), slog.Int("pid", pid)}
		if err := cmd.Wait(); err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		s.opts.Logger.Info("supervised command exited", attrs...)
	}()

	return nil
}

// stopLocked asks the child to terminate and kills it after the grace period.
func (s *Supervisor) stopLocked(c *child) {
	select {
	case <-c.done:
		return
	default:
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = c.cmd.Process.Kill()
		<-c.done

		return
	}

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		s.opts.Logger.Info("supervised command ignored SIGTERM, killing",
			slog.Int("pid", c.cmd.Process.Pid),
			slog.Duration("grace", s.opts.GracePeriod),
		)

		_ = c.cmd.Process.Kill()
		<-c.done
	}
}
