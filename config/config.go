// Package config loads refinery configuration using Viper.
//
// Precedence: defaults < config file (TOML) < REFINERY_* environment
// variables. The configuration surface is deliberately small: the engine's
// knobs are iteration ceilings, score thresholds, and pool sizing — the
// content logic itself lives behind the generative capability and has no
// configuration here.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/refinery/errors"
)

// Config holds the orchestration engine configuration.
type Config struct {
	// MaxIterations bounds every refinement loop. Loops never silently
	// continue past it.
	MaxIterations int `mapstructure:"max_iterations"`

	// QualityThreshold is the score in [0,1] at which a refinement loop
	// accepts a candidate.
	QualityThreshold float64 `mapstructure:"quality_threshold"`

	// DetectionThreshold is the human-likeness confidence in [0,1] the
	// detection loop requires before releasing a cover letter draft.
	DetectionThreshold float64 `mapstructure:"detection_threshold"`

	// PoolSize bounds concurrent work units. 0 means unbounded,
	// 1 means strictly sequential.
	PoolSize int `mapstructure:"pool_size"`

	// TopN is how many matched target specs survive ranking.
	TopN int `mapstructure:"top_n"`

	// TargetLength is the pruning target in characters.
	TargetLength int `mapstructure:"target_length"`

	// LengthTolerance is the acceptable deviation from TargetLength as a
	// fraction (0.1 = ±10%).
	LengthTolerance float64 `mapstructure:"length_tolerance"`

	// RunDir is the root directory for run artifacts.
	RunDir string `mapstructure:"run_dir"`

	Database DatabaseConfig `mapstructure:"database"`
	Gen      GenConfig      `mapstructure:"gen"`
}

// DatabaseConfig configures the SQLite store backing versions and checkpoints.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// GenConfig configures the external generative capability client.
type GenConfig struct {
	// Endpoint is the HTTP endpoint of the generative backend. Empty means
	// no backend is configured; commands that need one will refuse to run.
	Endpoint string `mapstructure:"endpoint"`

	// RequestsPerMinute rate-limits delegated calls. 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// TimeoutSeconds bounds a single delegated call.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the refinery configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific TOML file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", configPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// Validate checks value ranges the engine depends on.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return errors.Newf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return errors.Newf("quality_threshold must be in [0,1], got %g", c.QualityThreshold)
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return errors.Newf("detection_threshold must be in [0,1], got %g", c.DetectionThreshold)
	}
	if c.PoolSize < 0 {
		return errors.Newf("pool_size must be >= 0 (0 = unbounded), got %d", c.PoolSize)
	}
	if c.TopN < 1 {
		return errors.Newf("top_n must be >= 1, got %d", c.TopN)
	}
	return nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("REFINERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Optional project config file in the working directory
	v.SetConfigName("refinery")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // missing file is fine; defaults + env apply

	viperInstance = v
	return v
}
