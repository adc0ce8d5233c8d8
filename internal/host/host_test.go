package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Mode
// ---------------------------------------------------------------------------

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"enabled", ModeEnabled, false},
		{"Disabled", ModeDisabled, false},
		{" unknown ", ModeUnknown, false},
		{"", ModeUnknown, false},
		{"single", ModeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_StringRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeUnknown, ModeEnabled, ModeDisabled} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestStaticMode(t *testing.T) {
	got, err := StaticMode(ModeDisabled).QueryMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeDisabled, got)
}

func TestConfiguredMode(t *testing.T) {
	got, err := ConfiguredMode(ModeEnabled).QueryMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeEnabled, got)

	_, err = ConfiguredMode(ModeUnknown).QueryMode(context.Background())
	assert.ErrorIs(t, err, ErrModeUndetermined)
}

func TestFuncAdapters(t *testing.T) {
	boom := errors.New("boom")

	p := ModeProviderFunc(func(context.Context) (Mode, error) { return ModeEnabled, boom })
	m, err := p.QueryMode(context.Background())
	assert.Equal(t, ModeEnabled, m)
	assert.ErrorIs(t, err, boom)

	r := RecyclerFunc(func() error { return boom })
	assert.ErrorIs(t, r.Recycle(), boom)
}

// ---------------------------------------------------------------------------
// ExitRecycler
// ---------------------------------------------------------------------------

func TestExitRecycler_CancelsWithCause(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	r := NewExitRecycler(cancel)
	require.NoError(t, r.Recycle())

	<-ctx.Done()
	assert.True(t, RecycleRequested(ctx))

	// Second call is a no-op.
	require.NoError(t, r.Recycle())
}

func TestExitRecycler_NoCancel(t *testing.T) {
	r := NewExitRecycler(nil)
	assert.ErrorIs(t, r.Recycle(), ErrNoHost)
}

func TestRecycleRequested_OtherCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, RecycleRequested(ctx))
}

// ---------------------------------------------------------------------------
// Supervisor
// ---------------------------------------------------------------------------

func requireSleep(t *testing.T) string {
	t.Helper()

	p, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	return p
}

func TestNewSupervisor_EmptyCommand(t *testing.T) {
	_, err := NewSupervisor(SupervisorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command must not be empty")
}

func TestSupervisor_StartAndStop(t *testing.T) {
	sleep := requireSleep(t)

	s, err := NewSupervisor(SupervisorOptions{
		Command:     sleep,
		Args:        []string{"30"},
		GracePeriod: time.Second,
		Logger:      discardLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.NotZero(t, s.PID())

	// A second Start while running is refused.
	assert.Error(t, s.Start())

	s.Stop()
	assert.Zero(t, s.PID())
}

func TestSupervisor_RecycleReplacesChild(t *testing.T) {
	sleep := requireSleep(t)

	s, err := NewSupervisor(SupervisorOptions{
		Command:     sleep,
		Args:        []string{"30"},
		GracePeriod: time.Second,
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Start())
	first := s.PID()

	require.NoError(t, s.Recycle())
	second := s.PID()

	assert.NotZero(t, second)
	assert.NotEqual(t, first, second)
}

func TestSupervisor_RecycleAfterStop(t *testing.T) {
	sleep := requireSleep(t)

	s, err := NewSupervisor(SupervisorOptions{Command: sleep, Args: []string{"30"}, Logger: discardLogger()})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	s.Stop()

	assert.ErrorIs(t, s.Recycle(), ErrSupervisorStopped)
	assert.ErrorIs(t, s.Start(), ErrSupervisorStopped)
}

func TestSupervisor_RecycleStartFailure(t *testing.T) {
	s, err := NewSupervisor(SupervisorOptions{
		Command: "/nonexistent/binwatch-test-binary",
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	defer s.Stop()

	err = s.Recycle()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restarting")
}

func TestSupervisor_Run(t *testing.T) {
	sleep := requireSleep(t)

	s, err := NewSupervisor(SupervisorOptions{Command: sleep, Args: []string{"30"}, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.PID() != 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop in time")
	}

	assert.Zero(t, s.PID())
}
