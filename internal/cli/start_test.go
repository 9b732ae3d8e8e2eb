package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/vigil/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file into a fresh data directory
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestStartCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "start", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Start the Vigil daemon service")
		assert.Contains(t, output, "--foreground")
	})

	t.Run("already running", func(t *testing.T) {
		path := writeConfig(t, `{}`)
		pidFile := daemon.PIDFilePath(filepath.Dir(path))
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		_, err := execute(t, "--config", path, "start", "--foreground")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("loads without overriding", func(t *testing.T) {
		t.Setenv("VIGIL_DOTENV_KEPT", "from-env")
		t.Cleanup(func() { os.Unsetenv("VIGIL_DOTENV_ADDED") })

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("VIGIL_DOTENV_ADDED=from-file\nVIGIL_DOTENV_KEPT=from-file\n"), 0644))

		require.NoError(t, loadDotEnv(path))
		assert.Equal(t, "from-file", os.Getenv("VIGIL_DOTENV_ADDED"))
		assert.Equal(t, "from-env", os.Getenv("VIGIL_DOTENV_KEPT"))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("'bad=value\n"), 0644))

		assert.Error(t, loadDotEnv(path))
	})
}
