package config

import "github.com/spf13/viper"

// SetDefaults registers default configuration values on a Viper instance.
// These are the values a fresh checkout runs with when no config file or
// environment overrides are present.
func SetDefaults(v *viper.Viper) {
	// Loop bounds and thresholds
	v.SetDefault("max_iterations", 10)
	v.SetDefault("quality_threshold", 0.8)
	v.SetDefault("detection_threshold", 0.999)

	// Concurrency: 0 = unbounded, 1 = sequential
	v.SetDefault("pool_size", 0)

	// Matching
	v.SetDefault("top_n", 3)

	// Pruning
	v.SetDefault("target_length", 4000)
	v.SetDefault("length_tolerance", 0.1)

	// Artifact layout
	v.SetDefault("run_dir", "runs")

	// Storage
	v.SetDefault("database.path", "refinery.db")

	// Generative backend
	v.SetDefault("gen.endpoint", "")
	v.SetDefault("gen.requests_per_minute", 0)
	v.SetDefault("gen.timeout_seconds", 120)
}
