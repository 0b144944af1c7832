package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/pkg/validation"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr)
	assert.Equal(t, JournalMemory, cfg.Journal.Backend)
	assert.Nil(t, cfg.Pipeline.Seed)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "agentflow.yaml", `
server:
  addr: 0.0.0.0:9090
  shutdown_timeout: 3s
log:
  level: debug
  format: console
pipeline:
  name: file-input
  seed: 42
journal:
  backend: sqlite
  sqlite_path: /tmp/journal.db
  ttl: 1h
  save_timeout: 2s
`)
	envFile := write(t, dir, "test.env", "AGENTFLOW_LOG_LEVEL=warn\nAGENTFLOW_CANVAS_WIDTH=1600\n")
	t.Setenv("AGENTFLOW_ADDR", "127.0.0.1:7070")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Unsetenv("AGENTFLOW_LOG_LEVEL")
		os.Unsetenv("AGENTFLOW_CANVAS_WIDTH")
	})

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.Addr, "env beats yaml")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Log.Level, ".env beats yaml")
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "file-input", cfg.Pipeline.Name)
	require.NotNil(t, cfg.Pipeline.Seed)
	assert.Equal(t, int64(42), *cfg.Pipeline.Seed)
	assert.Equal(t, JournalSQLite, cfg.Journal.Backend)
	assert.Equal(t, time.Hour, cfg.Journal.TTL)
	assert.Equal(t, 2*time.Second, cfg.Journal.SaveTimeout)
	assert.Equal(t, 1600.0, cfg.Canvas.Width)
	assert.Equal(t, 700.0, cfg.Canvas.Height)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "nope.yaml"), noEnvFile(t))
	assert.Error(t, err)

	unknown := write(t, dir, "unknown.yaml", "server:\n  port: 1\n")
	_, err = Load(unknown, noEnvFile(t))
	assert.Error(t, err)

	t.Run("malformed env", func(t *testing.T) {
		t.Setenv("AGENTFLOW_SEED", "forty-two")
		t.Setenv("AGENTFLOW_SHUTDOWN_TIMEOUT", "soon")
		_, err := Load("", noEnvFile(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AGENTFLOW_SEED")
		assert.Contains(t, err.Error(), "AGENTFLOW_SHUTDOWN_TIMEOUT")
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("AGENTFLOW_LOG_LEVEL", "loud")
		t.Setenv("AGENTFLOW_JOURNAL", "postgres")
		_, err := Load("", noEnvFile(t))
		require.Error(t, err)
		var verrs validation.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		fields := make([]string, len(verrs))
		for i, v := range verrs {
			fields[i] = v.Field
		}
		assert.Contains(t, fields, "Config.Log.Level")
		assert.Contains(t, fields, "Config.Journal.PostgresDSN")
	})
}

func TestConfig_Serializer(t *testing.T) {
	cfg := Default()
	s, err := cfg.Serializer()
	require.NoError(t, err)
	assert.Equal(t, "msgpack+zstd", s.Format())

	cfg.Journal.Codec = "json"
	cfg.Journal.Compression = "gzip"
	s, err = cfg.Serializer()
	require.NoError(t, err)
	assert.Equal(t, "json+gzip", s.Format())

	cfg.Journal.Compression = "lz4"
	_, err = cfg.Serializer()
	assert.Error(t, err)
}
