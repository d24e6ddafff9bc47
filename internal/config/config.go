// Package config loads the agent's configuration from YAML plus
// environment variable overrides, following the teacher's pattern of a
// typed Config struct validated with go-playground/validator, with
// defaults applied by a separate ApplyDefaults pass (pkg/config.Config
// / pkg/config.ApplyDefaults in the teacher).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pennsieve/agent/internal/bytesize"
)

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" yaml:"sample_rate" validate:"omitempty,min=0,max=1"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// CacheConfig controls the timeseries page cache.
type CacheConfig struct {
	BasePath      string            `mapstructure:"base_path" yaml:"base_path" validate:"required"`
	PageSize      int               `mapstructure:"page_size" yaml:"page_size" validate:"omitempty,min=1"`
	SoftCacheSize bytesize.ByteSize `mapstructure:"soft_cache_size" yaml:"soft_cache_size"`
	HardCacheSize bytesize.ByteSize `mapstructure:"hard_cache_size" yaml:"hard_cache_size"`
}

// ProxyConfig controls the reverse HTTP proxy.
type ProxyConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	LocalPort int    `mapstructure:"local_port" yaml:"local_port" validate:"omitempty,min=1,max=65535"`
	Upstream  string `mapstructure:"upstream" yaml:"upstream" validate:"omitempty,url"`
}

// TimeseriesConfig controls the timeseries WebSocket proxy.
type TimeseriesConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	LocalPort int    `mapstructure:"local_port" yaml:"local_port" validate:"omitempty,min=1,max=65535"`
	Upstream  string `mapstructure:"upstream" yaml:"upstream"`
}

// UploaderConfig controls the upload engine.
type UploaderConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Parallelism int    `mapstructure:"parallelism" yaml:"parallelism" validate:"omitempty,min=1"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket" validate:"required_if=Enabled true"`
}

// StatusConfig controls the status WebSocket hub.
type StatusConfig struct {
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// PlatformConfig holds the credentials injected by environment
// variables per spec: PENNSIEVE_API_TOKEN/KEY, PENNSIEVE_API_SECRET/
// SECRET_KEY, PENNSIEVE_API_ENVIRONMENT.
type PlatformConfig struct {
	APIHost     string `mapstructure:"api_host" yaml:"api_host" validate:"omitempty,url"`
	APIToken    string `mapstructure:"-" yaml:"-"`
	APISecret   string `mapstructure:"-" yaml:"-"`
	Environment string `mapstructure:"-" yaml:"-"`
}

// Config is the agent's fully resolved configuration.
type Config struct {
	Logging          LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Telemetry        TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics          MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Cache            CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Proxy            ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	Timeseries       TimeseriesConfig  `mapstructure:"timeseries" yaml:"timeseries"`
	Uploader         UploaderConfig    `mapstructure:"uploader" yaml:"uploader"`
	Status           StatusConfig      `mapstructure:"status" yaml:"status"`
	Platform         PlatformConfig    `mapstructure:"platform" yaml:"platform"`
	DatabasePath     string            `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	DisableMigrations bool             `mapstructure:"-" yaml:"-"`
	ShutdownTimeout  time.Duration     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Load reads configuration from the given YAML file path (if non-empty
// and present), overlays environment variables (PENNSIEVE_ prefix, per
// spec.md §6, plus AGENT_ for ambient settings), applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	ApplyDefaults(&cfg)
	for key, flag := range map[string]*bool{
		"metrics.enabled":    &cfg.Metrics.Enabled,
		"proxy.enabled":      &cfg.Proxy.Enabled,
		"timeseries.enabled": &cfg.Timeseries.Enabled,
		"uploader.enabled":   &cfg.Uploader.Enabled,
	} {
		if v.IsSet(key) {
			*flag = v.GetBool(key)
		}
	}
	applyPlatformEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyPlatformEnv reads the platform credential environment variables
// directly (they are deliberately not part of the YAML-bound tree,
// since they inject an ad-hoc profile overriding any file-based one).
func applyPlatformEnv(cfg *Config) {
	cfg.Platform.APIToken = firstNonEmpty(os.Getenv("PENNSIEVE_API_TOKEN"), os.Getenv("PENNSIEVE_API_KEY"))
	cfg.Platform.APISecret = firstNonEmpty(os.Getenv("PENNSIEVE_API_SECRET"), os.Getenv("PENNSIEVE_SECRET_KEY"))
	cfg.Platform.Environment = os.Getenv("PENNSIEVE_API_ENVIRONMENT")
	if _, ok := os.LookupEnv("DISABLE_MIGRATIONS"); ok {
		cfg.DisableMigrations = true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate runs struct-tag validation over the resolved Config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
