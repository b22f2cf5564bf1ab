package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Parallel()

	t.Run("temporary", func(t *testing.T) {
		t.Parallel()

		tmp := t.TempDir()
		var d Dir
		require.NoError(t, d.Make(tmp, ""))
		assert.Equal(t, tmp, filepath.Dir(d.Dir))
		require.DirExists(t, d.Dir)
		require.NoError(t, os.WriteFile(filepath.Join(d.Dir, "DevToolsActivePort"), []byte("1\n/x"), 0o600))

		require.NoError(t, d.Cleanup())
		assert.NoDirExists(t, d.Dir)
		assert.NoError(t, d.Cleanup())
	})
	t.Run("user_provided", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		var d Dir
		require.NoError(t, d.Make("", dir))
		assert.Equal(t, dir, d.Dir)

		require.NoError(t, d.Cleanup())
		assert.DirExists(t, dir, "user directories are kept")
	})
}
