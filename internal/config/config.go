// Package config loads navid's configuration: logging, telemetry, the
// driver/server list, cache, scheduler, and URL Space introspection
// sections, following this codebase's viper+mapstructure+validator
// pattern (see _examples/marmos91-dittofs/pkg/config/config.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/navispace/navid/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is navid's full static configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NAVID_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// TmpDir is where request bodies beyond SpoolThreshold are spooled.
	TmpDir string `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	// SpoolThreshold bounds in-memory request body buffering; bodies larger
	// than this spool to a temp file under TmpDir instead (0 is replaced by
	// the default threshold when defaults are applied).
	SpoolThreshold bytesize.ByteSize `mapstructure:"spool_threshold" yaml:"spool_threshold"`

	// Drivers lists every listening server (protocol/address/port) the
	// reactor should accept connections on.
	Drivers []DriverConfig `mapstructure:"drivers" validate:"dive" yaml:"drivers"`

	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	URLSpace  URLSpaceConfig  `mapstructure:"urlspace" yaml:"urlspace"`
	Admin     AdminConfig     `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls optional OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls optional Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// DriverConfig describes one listening server.
type DriverConfig struct {
	// Name selects a registered driver (e.g. "tcp").
	Name string `mapstructure:"name" validate:"required" yaml:"name"`
	// Key is the URL Space server key requests on this driver resolve
	// against.
	Key string `mapstructure:"key" validate:"required" yaml:"key"`
	// Address is host:port to listen on. The port segment is required: no
	// driver default port is substituted when it is omitted.
	Address string `mapstructure:"address" validate:"required" yaml:"address"`
	// DeferAccept is not read by the server: the Linux TCP driver always
	// requests TCP_DEFER_ACCEPT, and the driver on other platforms never does.
	DeferAccept bool `mapstructure:"defer_accept" yaml:"defer_accept"`
	// MaxRequestSize bounds the request-URI length; the line-length and
	// header-count limits keep their dispatcher defaults.
	MaxRequestSize bytesize.ByteSize `mapstructure:"max_request_size" yaml:"max_request_size"`
	// MaxBodySize bounds the request entity; bodies beyond it fail with
	// ENTITYTOOLARGE (0 is replaced by the default cap when defaults are
	// applied).
	MaxBodySize bytesize.ByteSize `mapstructure:"max_body_size" yaml:"max_body_size"`
	// MaxKeepaliveRequests bounds how many requests one connection serves
	// before the driver closes it (0 is replaced by the default budget when
	// defaults are applied).
	MaxKeepaliveRequests int `mapstructure:"max_keepalive_requests" yaml:"max_keepalive_requests"`
	// TrustedProxyHeader names a header (e.g. "X-Forwarded-For") trusted to
	// carry the original client address, honored only when the immediate
	// peer's address falls within TrustedProxyCIDRs.
	TrustedProxyHeader string `mapstructure:"trusted_proxy_header" yaml:"trusted_proxy_header"`
	// TrustedProxyCIDRs lists the reverse-proxy CIDRs allowed to set
	// TrustedProxyHeader.
	TrustedProxyCIDRs []string `mapstructure:"trusted_proxy_cidrs" yaml:"trusted_proxy_cidrs"`
}

// CacheConfig configures one named cache instance.
type CacheConfig struct {
	Name    string            `mapstructure:"name" validate:"required" yaml:"name"`
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`
	TTL     time.Duration     `mapstructure:"ttl" yaml:"ttl"`
}

// SchedulerConfig configures the scheduler's periodic housekeeping jobs.
type SchedulerConfig struct {
	// CacheSweepInterval runs a cache TTL sweep this often (0 disables it).
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval" yaml:"cache_sweep_interval"`
}

// URLSpaceConfig configures the introspection endpoint that walks the URL
// Space junction for operational visibility.
type URLSpaceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AdminConfig configures navidctl's control API surface.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	// JWTSigningKey authenticates admin API bearer tokens.
	JWTSigningKey string `mapstructure:"jwt_signing_key" yaml:"jwt_signing_key,omitempty"`
}

// Load reads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path in YAML form, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NAVID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "navid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "navid")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
