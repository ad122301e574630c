package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray .env or
// .timebox/config.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadFrom("", "")
	require.NoError(t, err)

	assert.Equal(t, DataDirName, cfg.DataDir)
	assert.Equal(t, filepath.Join(DataDirName, "timebox.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(DataDirName, "tasks.jsonl"), cfg.SnapshotPath)
	assert.Equal(t, DefaultMaxConcurrency, cfg.MaxConcurrency)
	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.AutoSnapshot)
	assert.True(t, cfg.ConfirmStart)
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	content := "max_concurrency: 3\ncapacity: 20\nlog_level: DEBUG\nconfirm_start: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFrom("", path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, 20, cfg.Capacity)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.ConfirmStart)
}

func TestLoadFindsFileInDataDir(t *testing.T) {
	dir := isolate(t)
	dataDir := filepath.Join(dir, "state")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, FileName), []byte("capacity: 7\n"), 0644))

	cfg, err := LoadFrom(dataDir, "")
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 7, cfg.Capacity)
	assert.Equal(t, filepath.Join(dataDir, "timebox.db"), cfg.DBPath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrency: 3\n"), 0644))

	t.Setenv("TIMEBOX_MAX_CONCURRENCY", "5")
	t.Setenv("TIMEBOX_DB_PATH", "/tmp/elsewhere.db")

	cfg, err := LoadFrom("", path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxConcurrency)
	assert.Equal(t, "/tmp/elsewhere.db", cfg.DBPath)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TIMEBOX_CAPACITY=42\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("TIMEBOX_CAPACITY") })

	cfg, err := LoadFrom("", "")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Capacity)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"concurrency too high", map[string]string{"TIMEBOX_MAX_CONCURRENCY": "11"}},
		{"concurrency zero", map[string]string{"TIMEBOX_MAX_CONCURRENCY": "0"}},
		{"capacity too high", map[string]string{"TIMEBOX_CAPACITY": "5000"}},
		{"bad log level", map[string]string{"TIMEBOX_LOG_LEVEL": "chatty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom("", "")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := LoadFrom("", filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, DataDirName, FileName)

	written, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_concurrency: 10")
	assert.NotContains(t, string(data), "data_dir")

	written, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, written, "existing file must not be overwritten")

	cfg, err := LoadFrom("", path)
	require.NoError(t, err)
	assert.Equal(t, Default().Capacity, cfg.Capacity)
}
