// Package host models the runtime that owns the application's execution
// domain. binwatch asks the host two things: whether it already restarts
// itself on file changes, and to recycle when new binaries have landed.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode is the host's own file-change-notification mode.
type Mode int

const (
	// ModeUnknown means the host's state could not be read or is absent.
	ModeUnknown Mode = iota
	// ModeEnabled means the host restarts itself on file changes.
	ModeEnabled
	// ModeDisabled means the host ignores file changes.
	ModeDisabled
)

// String returns the config spelling of m.
func (m Mode) String() string {
	switch m {
	case ModeEnabled:
		return "enabled"
	case ModeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseMode converts a config value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled":
		return ModeEnabled, nil
	case "disabled":
		return ModeDisabled, nil
	case "unknown", "":
		return ModeUnknown, nil
	default:
		return ModeUnknown, fmt.Errorf("unknown host notification mode %q", s)
	}
}

// ModeProvider reports the host's notification mode.
type ModeProvider interface {
	QueryMode(ctx context.Context) (Mode, error)
}

// ModeProviderFunc adapts a function to ModeProvider.
type ModeProviderFunc func(ctx context.Context) (Mode, error)

// QueryMode calls f.
func (f ModeProviderFunc) QueryMode(ctx context.Context) (Mode, error) {
	return f(ctx)
}

// WatcherCounter is optionally implemented by a ModeProvider that can report
// how many directory monitors the host has active. It is diagnostic only.
type WatcherCounter interface {
	ActiveWatchers() int
}

// StaticMode is a ModeProvider that always reports the same mode. It backs
// the host-notifications config setting.
type StaticMode Mode

// QueryMode returns the configured mode.
func (s StaticMode) QueryMode(context.Context) (Mode, error) {
	return Mode(s), nil
}

// ErrModeUndetermined is returned by ConfiguredMode when the operator has
// not said how the host behaves.
var ErrModeUndetermined = errors.New("host notification mode not configured")

// ConfiguredMode returns the ModeProvider for an operator-supplied mode.
// ModeUnknown reports ErrModeUndetermined so detection applies its fallback.
func ConfiguredMode(m Mode) ModeProvider {
	if m == ModeUnknown {
		return ModeProviderFunc(func(context.Context) (Mode, error) {
			return ModeUnknown, ErrModeUndetermined
		})
	}

	return StaticMode(m)
}

// Recycler unloads and reloads the host's execution domain so newly deployed
// binaries take effect.
type Recycler interface {
	Recycle() error
}

// RecyclerFunc adapts a function to Recycler.
type RecyclerFunc func() error

// Recycle calls f.
func (f RecyclerFunc) Recycle() error {
	return f()
}
