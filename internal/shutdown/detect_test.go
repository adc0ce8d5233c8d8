package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/binwatch/internal/host"
	"github.com/hupe1980/binwatch/internal/logging"
)

// countingProvider reports a mode and a number of active host monitors.
type countingProvider struct {
	mode   host.Mode
	count  int
	broken bool
}

func (p countingProvider) QueryMode(context.Context) (host.Mode, error) { return p.mode, nil }

func (p countingProvider) ActiveWatchers() int {
	if p.broken {
		panic("monitor count unreadable")
	}

	return p.count
}

func TestDetect(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		provider host.ModeProvider
		fallback bool
		want     bool
	}{
		{"enabled", host.StaticMode(host.ModeEnabled), true, false},
		{"disabled", host.StaticMode(host.ModeDisabled), false, true},
		{"unknown", host.StaticMode(host.ModeUnknown), false, true},
		{"absent", nil, false, true},
		{"error fallback true", host.ModeProviderFunc(func(context.Context) (host.Mode, error) {
			return host.ModeEnabled, boom
		}), true, true},
		{"error fallback false", host.ModeProviderFunc(func(context.Context) (host.Mode, error) {
			return host.ModeDisabled, boom
		}), false, false},
		{"panic", host.ModeProviderFunc(func(context.Context) (host.Mode, error) {
			panic("reflection failed")
		}), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &syncBuffer{}
			logger := slog.New(logging.NewHandler(buf, "text", logging.LevelTrace))

			got := Detect(context.Background(), tt.provider, tt.fallback, logger)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, buf.String(), "level=INFO")
			assert.NotContains(t, buf.String(), "level=ERROR")
		})
	}
}

func TestDetect_LogsModeAndCounters(t *testing.T) {
	buf := &syncBuffer{}
	logger := slog.New(logging.NewHandler(buf, "text", logging.LevelTrace))

	got := Detect(context.Background(), countingProvider{mode: host.ModeDisabled, count: 3}, false, logger)
	assert.True(t, got)

	out := buf.String()
	assert.Contains(t, out, "mode=disabled")
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "active=3")
}

func TestDetect_BrokenCounterKeepsDetectedMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     host.Mode
		fallback bool
		want     bool
	}{
		{"host restarts itself", host.ModeEnabled, true, false},
		{"host ignores changes", host.ModeDisabled, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &syncBuffer{}
			logger := slog.New(logging.NewHandler(buf, "text", logging.LevelTrace))

			got := Detect(context.Background(), countingProvider{mode: tt.mode, broken: true}, tt.fallback, logger)
			assert.Equal(t, tt.want, got)

			out := buf.String()
			assert.Contains(t, out, "host directory monitors unavailable")
			assert.NotContains(t, out, "detection failed")
		})
	}
}

func TestDetect_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Detect(context.Background(), host.StaticMode(host.ModeEnabled), true, nil)
	})
}
