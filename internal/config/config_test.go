package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, int64(5<<20), cfg.Server.MaxChunkBytes())
	assert.Equal(t, int64(5<<20), cfg.Client.ChunkBytes())
	assert.Equal(t, int64(5<<20), cfg.Client.SingleFileThresholdBytes())
	assert.Zero(t, cfg.Client.MaxTotalBytes())
	assert.Equal(t, 3, cfg.Client.ParallelLimit)
	assert.Equal(t, "metadata", cfg.Client.FileIDMode)
	assert.Equal(t, 2*time.Minute, cfg.Client.RequestTimeout)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8080"
  max_chunk_size: "1MiB"
client:
  chunk_size: "512k"
  parallel_limit: 5
  confirm_interval: 1s
`), 0o644))
	t.Setenv("CHUNKVAULT_SERVER_PORT", "9090")
	t.Setenv("CHUNKVAULT_CLIENT_FILE_ID_MODE", "content")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxChunkBytes())
	assert.Equal(t, int64(512<<10), cfg.Client.ChunkBytes())
	assert.Equal(t, 5, cfg.Client.ParallelLimit)
	assert.Equal(t, time.Second, cfg.Client.ConfirmInterval)
	assert.Equal(t, "content", cfg.Client.FileIDMode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad size":       "client:\n  chunk_size: \"lots\"\n",
		"zero chunk":     "client:\n  chunk_size: \"0\"\n",
		"zero parallel":  "client:\n  parallel_limit: 0\n",
		"unknown idmode": "client:\n  file_id_mode: \"random\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseBytes(t *testing.T) {
	n, err := ParseBytes("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ParseBytes("5MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(5<<20), n)

	n, err = ParseBytes("1048576")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), n)
}

func TestLoad_EnvOverridesKeysMissingFromFile(t *testing.T) {
	t.Setenv("CHUNKVAULT_REDIS_ENABLED", "true")
	t.Setenv("CHUNKVAULT_REDIS_PASSWORD", "secret")
	t.Setenv("CHUNKVAULT_REDIS_DB", "2")
	t.Setenv("CHUNKVAULT_KAFKA_BROKERS", "k:9092")
	t.Setenv("CHUNKVAULT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("CHUNKVAULT_LOG_OUTPUT_PATH", "/var/log/chunkvault")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "k:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "minio:9000", cfg.MinIO.Endpoint)
	assert.Equal(t, "/var/log/chunkvault", cfg.Log.OutputPath)
}
