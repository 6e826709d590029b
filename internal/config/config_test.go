package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[webhook]
rate_limit = 20
rate_window = "30s"

[sync]
conflict_window = "2m"

[memgraph]
uri = "bolt://graph:7687"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Webhook.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Webhook.RateWindow.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Sync.ConflictWindow.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Sync.JobTTL.Duration)
	assert.Equal(t, "bolt://graph:7687", cfg.Memgraph.URI)
	assert.Equal(t, 50, cfg.Ingestion.BatchSize)
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\njob_ttl = \"soon\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("NANGO_SECRET_KEY", "sk")
	t.Setenv("INGEST_BATCH_SIZE", "25")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sk", cfg.Nango.SecretKey)
	assert.Equal(t, 25, cfg.Ingestion.BatchSize)
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NANGO_SECRET_KEY")
	assert.Contains(t, err.Error(), "NANGO_WEBHOOK_SECRET")

	cfg.Nango.SecretKey = "a"
	cfg.Nango.WebhookSecret = "b"
	assert.NoError(t, cfg.Validate())
}
