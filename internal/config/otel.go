package config

// OtelConfig holds OpenTelemetry configuration.
// Tracing is disabled when ExporterEndpoint is empty.
type OtelConfig struct {
	// ExporterEndpoint is the OTLP HTTP endpoint (e.g. http://localhost:4318).
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string  `env:"OTEL_SERVICE_NAME"            envDefault:"medgraph-server"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE"           envDefault:"1.0"`
}

// Enabled returns true when an OTLP endpoint is configured.
func (c OtelConfig) Enabled() bool {
	return c.ExporterEndpoint != ""
}

// SentryConfig holds error reporting settings.
// Reporting is disabled when DSN is empty.
type SentryConfig struct {
	DSN         string  `env:"SENTRY_DSN" envDefault:""`
	Environment string  `env:"SENTRY_ENVIRONMENT" envDefault:""`
	SampleRate  float64 `env:"SENTRY_SAMPLE_RATE" envDefault:"1.0"`
	Release     string  `env:"SENTRY_RELEASE" envDefault:""`
}

// Enabled returns true when a DSN is configured.
func (c SentryConfig) Enabled() bool {
	return c.DSN != ""
}
