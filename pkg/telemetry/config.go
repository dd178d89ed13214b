// ABOUTME: Telemetry settings with defaults, environment overrides and validation
// ABOUTME: Environment variables use the ROWSLICE_TELEMETRY_ prefix and reject unparsable values

package telemetry

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "ROWSLICE_TELEMETRY_"

// ErrInvalidConfig wraps every validation and environment parsing failure
var ErrInvalidConfig = errors.New("invalid telemetry config")

// Exporter names accepted in Config.Exporters
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
)

var knownExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}

// Config holds telemetry settings.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Enabled        bool   `json:"enabled"`

	// Exporters lists the active exporters. prometheus serves metrics on
	// PrometheusPort, otlp sends traces to OTLPEndpoint, stdout prints both.
	Exporters []string `json:"exporters"`

	// SampleRate is the fraction of root spans sampled, 0.0 to 1.0
	SampleRate float64 `json:"sample_rate"`

	PrometheusPort int    `json:"prometheus_port"`
	OTLPEndpoint   string `json:"otlp_endpoint"`

	ExportTimeout      time.Duration `json:"export_timeout"`
	BatchTimeout       time.Duration `json:"batch_timeout"`
	MaxQueueSize       int           `json:"max_queue_size"`
	MaxExportBatchSize int           `json:"max_export_batch_size"`
}

// DefaultConfig returns enabled telemetry printing to stdout.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "rowslice",
		ServiceVersion:     "development",
		Enabled:            true,
		Exporters:          []string{ExporterStdout},
		SampleRate:         1.0,
		PrometheusPort:     9090,
		OTLPEndpoint:       "http://localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// envBinding applies one environment value to the config
type envBinding struct {
	name  string
	apply func(c *Config, val string) error
}

var envBindings = []envBinding{
	{"SERVICE_NAME", func(c *Config, v string) error { c.ServiceName = v; return nil }},
	{"SERVICE_VERSION", func(c *Config, v string) error { c.ServiceVersion = v; return nil }},
	{"ENABLED", func(c *Config, v string) (err error) { c.Enabled, err = strconv.ParseBool(v); return }},
	{"EXPORTERS", func(c *Config, v string) error { c.Exporters = splitList(v); return nil }},
	{"SAMPLE_RATE", func(c *Config, v string) (err error) { c.SampleRate, err = strconv.ParseFloat(v, 64); return }},
	{"PROMETHEUS_PORT", func(c *Config, v string) (err error) { c.PrometheusPort, err = strconv.Atoi(v); return }},
	{"OTLP_ENDPOINT", func(c *Config, v string) error { c.OTLPEndpoint = v; return nil }},
	{"EXPORT_TIMEOUT", func(c *Config, v string) (err error) { c.ExportTimeout, err = time.ParseDuration(v); return }},
	{"BATCH_TIMEOUT", func(c *Config, v string) (err error) { c.BatchTimeout, err = time.ParseDuration(v); return }},
	{"MAX_QUEUE_SIZE", func(c *Config, v string) (err error) { c.MaxQueueSize, err = strconv.Atoi(v); return }},
	{"MAX_EXPORT_BATCH_SIZE", func(c *Config, v string) (err error) { c.MaxExportBatchSize, err = strconv.Atoi(v); return }},
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromEnv overrides fields from ROWSLICE_TELEMETRY_* variables. A value
// that does not parse leaves its field unchanged and is reported; the
// remaining variables are still applied.
func (c *Config) LoadFromEnv() error {
	var errs []error
	for _, b := range envBindings {
		key := EnvPrefix + b.name
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			continue
		}
		next := *c
		if err := b.apply(&next, val); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, val, err))
			continue
		}
		*c = next
	}
	return errors.Join(errs...)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("%w: service_name cannot be empty", ErrInvalidConfig)
	case c.ServiceVersion == "":
		return fmt.Errorf("%w: service_version cannot be empty", ErrInvalidConfig)
	case c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("%w: sample_rate must be between 0.0 and 1.0, got %g", ErrInvalidConfig, c.SampleRate)
	case c.PrometheusPort < 1 || c.PrometheusPort > 65535:
		return fmt.Errorf("%w: prometheus_port must be between 1 and 65535, got %d", ErrInvalidConfig, c.PrometheusPort)
	case c.ExportTimeout <= 0:
		return fmt.Errorf("%w: export_timeout must be positive, got %s", ErrInvalidConfig, c.ExportTimeout)
	case c.BatchTimeout <= 0:
		return fmt.Errorf("%w: batch_timeout must be positive, got %s", ErrInvalidConfig, c.BatchTimeout)
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("%w: max_queue_size must be positive, got %d", ErrInvalidConfig, c.MaxQueueSize)
	case c.MaxExportBatchSize <= 0 || c.MaxExportBatchSize > c.MaxQueueSize:
		return fmt.Errorf("%w: max_export_batch_size must be between 1 and max_queue_size, got %d", ErrInvalidConfig, c.MaxExportBatchSize)
	}

	for _, name := range c.Exporters {
		if !isKnownExporter(name) {
			return fmt.Errorf("%w: unknown exporter %q, valid options are: %s",
				ErrInvalidConfig, name, strings.Join(knownExporters, ", "))
		}
	}
	if c.HasExporter(ExporterOTLP) {
		if _, _, err := otlpEndpoint(c.OTLPEndpoint); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func isKnownExporter(name string) bool {
	for _, known := range knownExporters {
		if name == known {
			return true
		}
	}
	return false
}

// HasExporter reports whether name is configured.
func (c *Config) HasExporter(name string) bool {
	for _, exporter := range c.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}
