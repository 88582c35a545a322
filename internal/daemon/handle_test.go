package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	h := NewHandle(t.TempDir())

	require.NoError(t, h.Acquire())

	pid, err := h.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	h.Release()
	_, err = h.ReadPID()
	assert.True(t, os.IsNotExist(err), "pid file should be gone after release")
}

func TestAcquireCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	h := NewHandle(dir)

	require.NoError(t, h.Acquire())
	defer h.Release()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first := NewHandle(dir)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := NewHandle(dir)
	err := second.Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStalePIDTakeover(t *testing.T) {
	dir := t.TempDir()

	// A PID that can't belong to a live process.
	stale := []byte(strconv.Itoa(1 << 22))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), stale, 0o600))

	h := NewHandle(dir)
	require.NoError(t, h.Acquire())
	defer h.Release()

	pid, err := h.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestGarbagePIDFileTakeover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte("not-a-pid"), 0o600))

	h := NewHandle(dir)
	require.NoError(t, h.Acquire())
	defer h.Release()
}

func TestStateRoundTrip(t *testing.T) {
	h := NewHandle(t.TempDir())
	require.NoError(t, h.Acquire())
	defer h.Release()

	want := &State{
		PID:       os.Getpid(),
		StartedAt: time.Now().Truncate(time.Second),
		Version:   "1.2.3",
	}
	require.NoError(t, h.WriteState(want))

	got, err := h.ReadState()
	require.NoError(t, err)
	assert.Equal(t, want.PID, got.PID)
	assert.Equal(t, want.Version, got.Version)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
}

func TestIsRunningReflectsOwnProcess(t *testing.T) {
	h := NewHandle(t.TempDir())
	require.NoError(t, h.Acquire())
	defer h.Release()

	assert.True(t, h.IsRunning())
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	h := NewHandle(t.TempDir())
	h.Release()
}
