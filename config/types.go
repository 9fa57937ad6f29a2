package config

import (
	"strings"
	"time"
)

// Config holds everything the invocation chain and its sinks are built from.
// The env struct tag names the variable a field is read from; validation
// problems are reported under that name.
type Config struct {
	Environment string `env:"ENVIRONMENT"`
	ServiceName string `env:"POWERTOOLS_SERVICE_NAME" validate:"required"`

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Sinks   SinkConfig
	AWS     AWSConfig
	OTel    OTelConfig
	Handler HandlerConfig

	// Notices lists values that were present but unusable and have been
	// replaced by their default. They are logged when the chain is built.
	Notices []string `validate:"-"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level             string  `env:"POWERTOOLS_LOG_LEVEL" validate:"required,loglevel"`
	SamplingRate      float64 `env:"POWERTOOLS_LOGGER_SAMPLE_RATE" validate:"gte=0,lte=1"`
	SampleLevel       string  `env:"POWERTOOLS_LOGGER_SAMPLE_LEVEL" validate:"required,loglevel"`
	LogEvent          bool    `env:"POWERTOOLS_LOGGER_LOG_EVENT"`
	MaxEventBytes     int     `env:"POWERTOOLS_LOGGER_MAX_EVENT_BYTES" validate:"gt=0"`
	CorrelationIDPath string  `env:"POWERTOOLS_LOGGER_CORRELATION_ID_PATH" validate:"omitempty,jsonpointer"`
}

// TracingConfig configures the tracer.
type TracingConfig struct {
	Disabled        bool   `env:"POWERTOOLS_TRACE_DISABLED"`
	CaptureResponse bool   `env:"POWERTOOLS_TRACER_CAPTURE_RESPONSE"`
	CaptureError    bool   `env:"POWERTOOLS_TRACER_CAPTURE_ERROR"`
	// CaptureMode, when set, replaces both capture flags.
	CaptureMode string `env:"POWERTOOLS_TRACER_CAPTURE_MODE" validate:"omitempty,capturemode"`
	Namespace   string `env:"POWERTOOLS_TRACER_NAMESPACE"`
}

// MetricsConfig configures the metrics emitter.
type MetricsConfig struct {
	Namespace        string `env:"POWERTOOLS_METRICS_NAMESPACE" validate:"required,metricsnamespace"`
	Disabled         bool   `env:"POWERTOOLS_METRICS_DISABLED"`
	CaptureColdStart bool   `env:"POWERTOOLS_METRICS_CAPTURE_COLD_START"`
	RaiseOnEmpty     bool   `env:"POWERTOOLS_METRICS_RAISE_ON_EMPTY"`
	// DefaultDimensions is read as a comma separated list of name=value
	// pairs.
	DefaultDimensions map[string]string `env:"POWERTOOLS_METRICS_DEFAULT_DIMENSIONS"`
}

// SinkConfig selects where each kind of telemetry is exported.
type SinkConfig struct {
	Log     string `env:"POWERTOOLS_LOG_SINK" validate:"oneof=stdout cloudwatch none"`
	Trace   string `env:"POWERTOOLS_TRACE_EXPORTER" validate:"oneof=xray stdout otel s3 none"`
	Metrics string `env:"POWERTOOLS_METRICS_SINK" validate:"oneof=emf cloudwatch prometheus otel none"`
}

// AWSConfig holds the settings of the AWS-backed sinks.
type AWSConfig struct {
	Region             string `env:"AWS_REGION" validate:"required_if=UsesAWS true"`
	Endpoint           string `env:"S3_ENDPOINT"`
	AccessKeyID        string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey    string `env:"AWS_SECRET_ACCESS_KEY"`
	LogGroup           string `env:"POWERTOOLS_CLOUDWATCH_LOG_GROUP"`
	TraceArchiveBucket string `env:"POWERTOOLS_TRACE_ARCHIVE_BUCKET"`
	MaxRetries         int    `env:"AWS_MAX_ATTEMPTS" validate:"gte=0"`

	// UsesAWS is derived from the sink selection.
	UsesAWS bool `validate:"-"`
}

// OTelConfig configures the OTLP exporters.
type OTelConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// HandlerConfig configures the chain and the platform adapters.
type HandlerConfig struct {
	// Timeout bounds an invocation when the platform sets no deadline.
	Timeout time.Duration `env:"HANDLER_TIMEOUT" validate:"gt=0"`
	// TimeoutGrace is how long before the deadline open scopes are
	// finalized as timed out.
	TimeoutGrace time.Duration `env:"HANDLER_TIMEOUT_GRACE" validate:"gte=0"`
	// FlushTimeout bounds the final flush of buffering sinks.
	FlushTimeout   time.Duration `env:"HANDLER_FLUSH_TIMEOUT" validate:"gt=0"`
	MaxRequestSize int64         `env:"HANDLER_MAX_REQUEST_SIZE" validate:"gt=0"`
	Addr           string        `env:"HTTP_ADDR" validate:"required"`
	Platform       string        `env:"HANDLER_PLATFORM" validate:"omitempty,oneof=lambda http"`
	EnableHealth   bool          `env:"HANDLER_ENABLE_HEALTH"`
	EnableMetrics  bool          `env:"HANDLER_ENABLE_METRICS"`
}

// IsLocal reports whether the process runs on a developer machine.
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}
