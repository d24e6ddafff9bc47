package config

import (
	"path/filepath"
	"time"

	"github.com/pennsieve/agent/internal/bytesize"
)

// defaultPageSize is 100,000 samples/page, per spec.md §6.
const defaultPageSize = 100_000

// ApplyDefaults fills zero-valued fields with the agent's documented
// defaults. On its own it cannot tell an explicit zero/false from an
// unset field, so every *Enabled flag below is switched on (booleans
// default to true). Load re-applies the *Enabled flags that the config
// file or environment actually set, so a user who wants a component
// off sets it to false explicitly.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyCacheDefaults(&cfg.Cache)
	applyProxyDefaults(&cfg.Proxy)
	applyTimeseriesDefaults(&cfg.Timeseries)
	applyUploaderDefaults(&cfg.Uploader)
	applyStatusDefaults(&cfg.Status)
	applyPlatformDefaults(&cfg.Platform)

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(defaultHomeDir(), "agent.db")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
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
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults. Enabled
// defaults to false (opt-in); the zero value already covers that.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if !cfg.Enabled {
		cfg.Enabled = true
	}
	if cfg.Port == 0 {
		cfg.Port = 9091
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.BasePath == "" {
		cfg.BasePath = filepath.Join(defaultHomeDir(), "cache")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.SoftCacheSize == 0 {
		cfg.SoftCacheSize = 5 * bytesize.ByteSize(bytesize.GB)
	}
	if cfg.HardCacheSize == 0 {
		cfg.HardCacheSize = 10 * bytesize.ByteSize(bytesize.GB)
	}
}

func applyProxyDefaults(cfg *ProxyConfig) {
	if !cfg.Enabled {
		cfg.Enabled = true
	}
	if cfg.LocalPort == 0 {
		cfg.LocalPort = 8080
	}
	if cfg.Upstream == "" {
		cfg.Upstream = "https://api.pennsieve.io"
	}
}

func applyTimeseriesDefaults(cfg *TimeseriesConfig) {
	if !cfg.Enabled {
		cfg.Enabled = true
	}
	if cfg.LocalPort == 0 {
		cfg.LocalPort = 9090
	}
	if cfg.Upstream == "" {
		cfg.Upstream = "wss://streaming.pennsieve.io/ts"
	}
}

func applyPlatformDefaults(cfg *PlatformConfig) {
	if cfg.APIHost == "" {
		cfg.APIHost = "https://api.pennsieve.io"
	}
}

func applyUploaderDefaults(cfg *UploaderConfig) {
	if !cfg.Enabled {
		cfg.Enabled = true
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 4
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "pennsieve-uploads-v2"
	}
}

func applyStatusDefaults(cfg *StatusConfig) {
	if cfg.Port == 0 {
		cfg.Port = 11235
	}
}
