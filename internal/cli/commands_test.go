package cli

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAppRoot creates an application root with an empty bin directory.
func newAppRoot(t *testing.T) (root, bin string) {
	t.Helper()

	root = t.TempDir()
	bin = filepath.Join(root, "bin")
	require.NoError(t, os.Mkdir(bin, 0o755))

	return root, bin
}

// ---------------------------------------------------------------------------
// mode
// ---------------------------------------------------------------------------

func TestModeCommand(t *testing.T) {
	root, bin := newAppRoot(t)

	tests := []struct {
		name       string
		args       []string
		wantMode   string
		wantHandle string
	}{
		{"unknown falls back to handling", nil, "unknown", "true"},
		{"unknown without fallback", []string{"--fallback-handle=false"}, "unknown", "false"},
		{"host restarts itself", []string{"--host-notifications", "enabled"}, "enabled", "false"},
		{"host does not restart", []string{"--host-notifications", "disabled"}, "disabled", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"mode", "--app-root", root}, tt.args...)

			stdout, _, err := executeCommand(args...)
			require.NoError(t, err)

			assert.Contains(t, stdout, "watch target:       "+bin)
			assert.Contains(t, stdout, "host notifications: "+tt.wantMode)
			assert.Contains(t, stdout, "handle shutdowns:   "+tt.wantHandle)
		})
	}
}

func TestModeCommand_EnvOverride(t *testing.T) {
	root, _ := newAppRoot(t)
	t.Setenv("BINWATCH_HOST_NOTIFICATIONS", "enabled")

	stdout, _, err := executeCommand("mode", "--app-root", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "handle shutdowns:   false")
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func TestConfigCommand_PrintsEffectiveConfig(t *testing.T) {
	stdout, _, err := executeCommand("config", "--bin-dir", "assemblies")
	require.NoError(t, err)

	assert.Contains(t, stdout, "bin-dir: assemblies")
	assert.Contains(t, stdout, "debounce: 1.5s")
	assert.Contains(t, stdout, "quiet-suffix: .log.resources")
}

func TestConfigCommand_DiffMatchesDefaults(t *testing.T) {
	stdout, _, err := executeCommand("config", "--diff")
	require.NoError(t, err)
	assert.Contains(t, stdout, "configuration matches defaults")
}

func TestConfigCommand_DiffShowsOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "binwatch.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("debounce: 3s\n"), 0o644))

	stdout, _, err := executeCommand("--config", cfgFile, "config", "--diff", "--bin-dir", "out")
	require.NoError(t, err)

	assert.Contains(t, stdout, "--- defaults")
	assert.Contains(t, stdout, "+++ effective")
	assert.Contains(t, stdout, "-bin-dir: bin")
	assert.Contains(t, stdout, "+bin-dir: out")
	assert.Contains(t, stdout, "+debounce: 3s")
}

// ---------------------------------------------------------------------------
// completion
// ---------------------------------------------------------------------------

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			stdout, _, err := executeCommand("completion", shell)
			require.NoError(t, err)
			assert.Contains(t, stdout, "binwatch")
		})
	}
}

func TestCompletionShells(t *testing.T) {
	assert.Equal(t, []string{"bash", "fish", "powershell", "zsh"}, completionShells())
}

func TestCompletion_HostNotificationValues(t *testing.T) {
	stdout, _, err := executeCommand("__complete", "mode", "--host-notifications", "")
	require.NoError(t, err)

	for _, v := range []string{"enabled", "disabled", "unknown"} {
		assert.Contains(t, stdout, v)
	}
}

func TestCompletionCommand_InvalidShell(t *testing.T) {
	_, _, err := executeCommand("completion", "tcsh")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// watch
// ---------------------------------------------------------------------------

func TestWatchCommand_ExitsForRecycle(t *testing.T) {
	root, bin := newAppRoot(t)

	_, stderr, done := startCommand(context.Background(),
		"watch", "--app-root", root, "--debounce", "50ms", "--host-notifications", "disabled")

	require.Eventually(t, func() bool { return containsWatching(stderr.String()) }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), "handle-shutdowns=true")

	require.NoError(t, os.WriteFile(filepath.Join(bin, "App.dll"), []byte("MZ"), 0o644))

	select {
	case err := <-done:
		require.Error(t, err)

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, CodeRecycle, exitErr.Code)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not exit after a bin change")
	}
}

func TestWatchCommand_PassiveWhenHostRestartsItself(t *testing.T) {
	root, bin := newAppRoot(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, stderr, done := startCommand(ctx,
		"watch", "--app-root", root, "--debounce", "20ms", "--host-notifications", "enabled")

	require.Eventually(t, func() bool { return containsWatching(stderr.String()) }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), "handle-shutdowns=false")

	require.NoError(t, os.WriteFile(filepath.Join(bin, "App.dll"), []byte("MZ"), 0o644))

	select {
	case err := <-done:
		t.Fatalf("watch returned early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatchCommand_MissingBinDirStaysInert(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	_, stderr, done := startCommand(ctx, "watch", "--app-root", root, "--host-notifications", "disabled")

	require.Eventually(t, func() bool { return containsWatching(stderr.String()) }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), "state=inert")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatchCommand_SupervisesChild(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	root, bin := newAppRoot(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, stderr, done := startCommand(ctx,
		"watch", "--app-root", root, "--debounce", "30ms", "--grace-period", "500ms",
		"--host-notifications", "disabled", "--", sleepBin, "30")

	require.Eventually(t, func() bool { return containsWatching(stderr.String()) }, 2*time.Second, 10*time.Millisecond)

	// The child is restarted in place; watch keeps running.
	require.NoError(t, os.WriteFile(filepath.Join(bin, "App.dll"), []byte("MZ"), 0o644))

	select {
	case err := <-done:
		t.Fatalf("watch returned after a supervised recycle: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

// containsWatching reports whether watch has printed its startup line, which
// happens after the watcher is installed.
func containsWatching(stderr string) bool {
	return strings.Contains(stderr, "watching ")
}
