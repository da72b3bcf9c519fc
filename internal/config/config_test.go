package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIDEPODS_ENGINE_HOME", "/opt/tides")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/opt/tides", cfg.EngineHome)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "512k", cfg.GCSBlockSize)
	assert.Equal(t, 1000, cfg.GCSNumBlocks)
	assert.True(t, cfg.S3UseSSL)
	assert.Zero(t, cfg.EngineTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIDEPODS_ENGINE_HOME", "/opt/tides")
	t.Setenv("TIDEPODS_ENGINE_COMMAND", "wine64")
	t.Setenv("TIDEPODS_ENGINE_TIMEOUT", "90s")
	t.Setenv("TIDEPODS_WORKERS", "12")
	t.Setenv("TIDEPODS_S3_USE_SSL", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wine64", cfg.EngineCommand)
	assert.Equal(t, 90*time.Second, cfg.EngineTimeout)
	assert.Equal(t, 12, cfg.Workers)
	assert.False(t, cfg.S3UseSSL)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("TIDEPODS_WORKERS", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotenv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), "tides.env")
	require.NoError(t, os.WriteFile(dotenv, []byte("TIDEPODS_PREPACK_FILE=/data/prepack.dat\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TIDEPODS_PREPACK_FILE") })

	cfg, err := Load(dotenv)
	require.NoError(t, err)
	assert.Equal(t, "/data/prepack.dat", cfg.PrepackFile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Workers: 1}
	err := cfg.Validate()
	var merr *ErrMissingRequiredEnvVar
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "TIDEPODS_ENGINE_HOME", merr.Name)
	assert.EqualError(t, err, `required environment variable "TIDEPODS_ENGINE_HOME" is not set`)

	cfg.EngineExecutable = "/opt/tides/TidePredictor.exe"
	cfg.ConstituentsFile = "/opt/tides/global.dfs2"
	cfg.PrepackFile = "/opt/tides/prepack.dat"
	assert.NoError(t, cfg.Validate())

	cfg.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateS3(t *testing.T) {
	cfg := &Config{S3Endpoint: "localhost:9000", S3AccessKey: "key"}
	var merr *ErrMissingRequiredEnvVar
	require.True(t, errors.As(cfg.ValidateS3(), &merr))
	assert.Equal(t, "TIDEPODS_S3_SECRET_KEY", merr.Name)
	cfg.S3SecretKey = "secret"
	assert.NoError(t, cfg.ValidateS3())
}
