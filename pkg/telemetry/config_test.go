// ABOUTME: Tests for telemetry configuration validation, environment variable loading, and default values
// ABOUTME: Ensures configuration behaves correctly with valid and invalid inputs

package telemetry

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "workstats" {
		t.Errorf("Expected default service name 'workstats', got '%s'", cfg.ServiceName)
	}

	if cfg.Enabled {
		t.Error("Expected telemetry to be disabled by default")
	}

	if len(cfg.Exporters) != 1 || cfg.Exporters[0] != ExporterStdout {
		t.Errorf("Expected default exporters ['stdout'], got %v", cfg.Exporters)
	}

	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("Expected default OTLP endpoint 'localhost:4317', got '%s'", cfg.OTLPEndpoint)
	}

	if cfg.ExportInterval != time.Minute {
		t.Errorf("Expected default export interval 1m, got %s", cfg.ExportInterval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "empty service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "empty service version", mutate: func(c *Config) { c.ServiceVersion = "" }, wantErr: true},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -0.1 }, wantErr: true},
		{name: "sample rate too high", mutate: func(c *Config) { c.SampleRate = 1.1 }, wantErr: true},
		{name: "zero export interval", mutate: func(c *Config) { c.ExportInterval = 0 }, wantErr: true},
		{name: "zero export timeout", mutate: func(c *Config) { c.ExportTimeout = 0 }, wantErr: true},
		{name: "zero batch timeout", mutate: func(c *Config) { c.BatchTimeout = 0 }, wantErr: true},
		{name: "zero queue size", mutate: func(c *Config) { c.MaxQueueSize = 0 }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.MaxExportBatchSize = 0 }, wantErr: true},
		{name: "unknown exporter", mutate: func(c *Config) { c.Exporters = []string{"prometheus"} }, wantErr: true},
		{name: "otlp with endpoint", mutate: func(c *Config) { c.Exporters = []string{ExporterOTLP} }},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Exporters = []string{ExporterOTLP}
				c.OTLPEndpoint = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("WORKSTATS_TELEMETRY_SERVICE_NAME", "test-service")
	t.Setenv("WORKSTATS_TELEMETRY_SERVICE_VERSION", "2.0.0")
	t.Setenv("WORKSTATS_TELEMETRY_ENABLED", "true")
	t.Setenv("WORKSTATS_TELEMETRY_EXPORTERS", "stdout, otlp")
	t.Setenv("WORKSTATS_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("WORKSTATS_TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WORKSTATS_TELEMETRY_EXPORT_INTERVAL", "10s")
	t.Setenv("WORKSTATS_TELEMETRY_EXPORT_TIMEOUT", "60s")
	t.Setenv("WORKSTATS_TELEMETRY_BATCH_TIMEOUT", "2s")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "2.0.0" {
		t.Errorf("Expected service version '2.0.0', got '%s'", cfg.ServiceVersion)
	}
	if !cfg.Enabled {
		t.Error("Expected telemetry to be enabled")
	}
	if !cfg.HasExporter(ExporterStdout) || !cfg.HasExporter(ExporterOTLP) {
		t.Errorf("Expected trimmed exporters [stdout otlp], got %v", cfg.Exporters)
	}
	if cfg.SampleRate != 0.5 {
		t.Errorf("Expected sample rate 0.5, got %f", cfg.SampleRate)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("Expected OTLP endpoint 'collector:4317', got '%s'", cfg.OTLPEndpoint)
	}
	if cfg.ExportInterval != 10*time.Second {
		t.Errorf("Expected export interval 10s, got %s", cfg.ExportInterval)
	}
	if cfg.ExportTimeout != 60*time.Second {
		t.Errorf("Expected export timeout 60s, got %s", cfg.ExportTimeout)
	}
	if cfg.BatchTimeout != 2*time.Second {
		t.Errorf("Expected batch timeout 2s, got %s", cfg.BatchTimeout)
	}
}

func TestConfigLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("WORKSTATS_TELEMETRY_ENABLED", "invalid")
	t.Setenv("WORKSTATS_TELEMETRY_SAMPLE_RATE", "invalid")
	t.Setenv("WORKSTATS_TELEMETRY_EXPORT_INTERVAL", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	want := DefaultConfig()
	if cfg.Enabled != want.Enabled {
		t.Error("Invalid boolean should not change the value")
	}
	if cfg.SampleRate != want.SampleRate {
		t.Error("Invalid sample rate should not change the value")
	}
	if cfg.ExportInterval != want.ExportInterval {
		t.Error("Invalid interval should not change the value")
	}
}

func TestConfigHasExporter(t *testing.T) {
	cfg := Config{Exporters: []string{ExporterStdout}}

	if !cfg.HasExporter(ExporterStdout) {
		t.Error("Expected HasExporter('stdout') to return true")
	}
	if cfg.HasExporter(ExporterOTLP) {
		t.Error("Expected HasExporter('otlp') to return false")
	}
}
