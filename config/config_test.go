package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 0.8, cfg.QualityThreshold)
	assert.Equal(t, 0.999, cfg.DetectionThreshold)
	assert.Equal(t, 0, cfg.PoolSize)
	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, 4000, cfg.TargetLength)
	assert.Equal(t, 0.1, cfg.LengthTolerance)
	assert.Equal(t, "runs", cfg.RunDir)
	assert.Equal(t, "refinery.db", cfg.Database.Path)
	assert.Equal(t, 120, cfg.Gen.TimeoutSeconds)
	assert.Equal(t, 0, cfg.Gen.RequestsPerMinute)
	assert.Empty(t, cfg.Gen.Endpoint)
}

func TestLoadCachesConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestEnvironmentOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("REFINERY_MAX_ITERATIONS", "7")
	t.Setenv("REFINERY_QUALITY_THRESHOLD", "0.92")
	t.Setenv("REFINERY_DATABASE_PATH", "/tmp/custom.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, 0.92, cfg.QualityThreshold)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refinery.toml")
	content := `max_iterations = 4
quality_threshold = 0.9
pool_size = 2

[database]
path = "store.db"

[gen]
endpoint = "http://localhost:9876"
requests_per_minute = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, 0.9, cfg.QualityThreshold)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, "store.db", cfg.Database.Path)
	assert.Equal(t, "http://localhost:9876", cfg.Gen.Endpoint)
	assert.Equal(t, 30, cfg.Gen.RequestsPerMinute)
	// Unspecified keys keep their defaults.
	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, 120, cfg.Gen.TimeoutSeconds)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return cfg
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.MaxIterations = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.QualityThreshold = 1.2
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DetectionThreshold = -0.1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.PoolSize = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.TopN = 0
	assert.Error(t, cfg.Validate())
}
