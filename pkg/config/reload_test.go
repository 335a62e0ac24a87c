package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
strictness: balanced
`

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestInitialize_LoadsAndWatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cake.yaml")
	writeConfig(t, path, validConfig)

	mgr, err := Initialize(path)
	require.NoError(t, err)
	defer mgr.Close()

	assert.Equal(t, StrictnessBalanced, mgr.Current().Strictness)
}

func TestManager_ReloadAppliesValidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cake.yaml")
	writeConfig(t, path, validConfig)

	mgr, err := Initialize(path)
	require.NoError(t, err)
	defer mgr.Close()

	var reloaded atomic.Int32
	mgr.OnReload(func(c *Config) { reloaded.Add(1) })

	writeConfig(t, path, "strictness: paranoid\n")

	require.Eventually(t, func() bool {
		return mgr.Current().Strictness == StrictnessParanoid
	}, 2*time.Second, 10*time.Millisecond, "reload should pick up the new strictness")
	assert.Equal(t, int32(1), reloaded.Load())
}

func TestManager_ReloadWithInvalidPayloadKeepsRunningSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cake.yaml")
	writeConfig(t, path, validConfig)

	mgr, err := Initialize(path)
	require.NoError(t, err)
	defer mgr.Close()

	var reloaded atomic.Int32
	mgr.OnReload(func(c *Config) { reloaded.Add(1) })

	writeConfig(t, path, "strictness: not-a-real-strictness\n")

	// Give the watcher's debounce window time to fire and fail. There is
	// no observable success event to wait on here, so this asserts the
	// negative: the snapshot and listener count never change.
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, StrictnessBalanced, mgr.Current().Strictness, "invalid reload must not replace the running snapshot")
	assert.Equal(t, int32(0), reloaded.Load(), "listeners must not fire for a failed reload")
}

func TestLoad_RejectsInvalidVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cake.yaml")
	writeConfig(t, path, "version: \"9.9\"\nstrictness: balanced\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}
