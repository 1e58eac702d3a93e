package config

import (
	"os"
	"strings"
	"time"

	"github.com/navispace/navid/internal/bytesize"
)

// ApplyDefaults fills unspecified fields with sensible defaults. Zero
// values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if cfg.SpoolThreshold == 0 {
		cfg.SpoolThreshold = bytesize.ByteSize(64 * bytesize.KiB)
	}
	for i := range cfg.Drivers {
		applyDriverDefaults(&cfg.Drivers[i])
	}
	applyCacheDefaults(&cfg.Cache)
	applyURLSpaceDefaults(&cfg.URLSpace)
	applyAdminDefaults(&cfg.Admin)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyDriverDefaults(cfg *DriverConfig) {
	if cfg.Name == "" {
		cfg.Name = "tcp"
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = bytesize.ByteSize(8 * bytesize.KiB)
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = bytesize.ByteSize(10 * bytesize.MiB)
	}
	if cfg.MaxKeepaliveRequests == 0 {
		cfg.MaxKeepaliveRequests = 100
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bytesize.ByteSize(64 * bytesize.MiB)
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
}

func applyURLSpaceDefaults(cfg *URLSpaceConfig) {
	if cfg.Path == "" {
		cfg.Path = "/_urlspace"
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:9091"
	}
}

// DefaultConfig returns a Config with every default applied and one
// plain-TCP driver listening on :8080 under server key "nsd".
func DefaultConfig() *Config {
	cfg := &Config{
		Drivers: []DriverConfig{
			{Name: "tcp", Key: "nsd", Address: ":8080"},
		},
		Cache: CacheConfig{Name: "default"},
	}
	ApplyDefaults(cfg)
	return cfg
}
