package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "vigil.pid"), PIDFilePath("data"))
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadPID(filepath.Join(dir, "missing.pid"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("invalid content", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.pid")
		require.NoError(t, os.WriteFile(path, []byte("invalid"), 0644))

		_, err := ReadPID(path)
		assert.Error(t, err)
		assert.False(t, IsRunning(path))
	})

	t.Run("trailing newline", func(t *testing.T) {
		path := filepath.Join(dir, "newline.pid")
		require.NoError(t, os.WriteFile(path, []byte("1234\n"), 0644))

		pid, err := ReadPID(path)
		require.NoError(t, err)
		assert.Equal(t, 1234, pid)
	})
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "self.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644))

	assert.True(t, IsRunning(path))
	assert.False(t, IsRunning(filepath.Join(dir, "nonexistent.pid")))
}

func TestLifecycleManagerStartStop(t *testing.T) {
	cfg := testConfig(t.TempDir())
	d := createTestDaemon(t, cfg)

	lm := NewLifecycleManager(d)
	assert.Equal(t, filepath.Join(cfg.DataDir, "vigil.pid"), lm.pidFile)

	require.NoError(t, lm.Start())

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lm.Stop())
	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, lm.Stop(), "missing PID file is fine")
}

func TestLifecycleManagerRefusesLiveOwner(t *testing.T) {
	cfg := testConfig(t.TempDir())
	d := createTestDaemon(t, cfg)

	lm := NewLifecycleManager(d)
	require.NoError(t, os.WriteFile(lm.pidFile, []byte(strconv.Itoa(os.Getppid())), 0644))

	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestLifecycleManagerReplacesStalePID(t *testing.T) {
	cfg := testConfig(t.TempDir())
	d := createTestDaemon(t, cfg)

	lm := NewLifecycleManager(d)
	require.NoError(t, os.WriteFile(lm.pidFile, []byte("not-a-pid"), 0644))

	require.NoError(t, lm.Start())
	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}
