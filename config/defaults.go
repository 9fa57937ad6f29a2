package config

import "time"

// Default values shared by the parser and DefaultConfig.
const (
	DefaultServiceName    = "service_undefined"
	DefaultLogLevel       = "INFO"
	DefaultSampleLevel    = "DEBUG"
	DefaultMaxEventBytes  = 256 * 1024
	DefaultTimeout        = 30 * time.Second
	DefaultTimeoutGrace   = 100 * time.Millisecond
	DefaultFlushTimeout   = 2 * time.Second
	DefaultMaxRequestSize = 6 * 1024 * 1024 // Lambda synchronous payload limit
	DefaultAddr           = ":8080"
	DefaultRegion         = "us-east-1"
)

// DefaultLoggingConfig returns the logger defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:         DefaultLogLevel,
		SampleLevel:   DefaultSampleLevel,
		MaxEventBytes: DefaultMaxEventBytes,
	}
}

// DefaultSinkConfig returns the sink selection used outside Lambda. In
// Lambda the trace exporter defaults to xray instead.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Log:     "stdout",
		Trace:   "stdout",
		Metrics: "emf",
	}
}

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Timeout:        DefaultTimeout,
		TimeoutGrace:   DefaultTimeoutGrace,
		FlushTimeout:   DefaultFlushTimeout,
		MaxRequestSize: DefaultMaxRequestSize,
		Addr:           DefaultAddr,
		EnableHealth:   true,
		EnableMetrics:  true,
	}
}

// DefaultConfig returns a complete configuration with defaults for every
// optional value. The metrics namespace has no default and must be set.
// This is useful for testing or when you want to start with defaults and
// override specific parts.
func DefaultConfig() *Config {
	return &Config{
		Environment: "local",
		ServiceName: DefaultServiceName,
		Logging:     DefaultLoggingConfig(),
		Sinks:       DefaultSinkConfig(),
		AWS:         AWSConfig{Region: DefaultRegion},
		Handler:     DefaultHandlerConfig(),
	}
}

// applyDefaults fills values that depend on other values.
func (c *Config) applyDefaults() {
	if c.Tracing.Namespace == "" {
		c.Tracing.Namespace = c.ServiceName
	}
	switch c.Sinks.Log {
	case "cloudwatch":
		c.AWS.UsesAWS = true
		if c.AWS.LogGroup == "" {
			c.AWS.LogGroup = "/powertools/" + c.ServiceName
		}
	}
	switch c.Sinks.Trace {
	case "xray", "s3":
		c.AWS.UsesAWS = true
	}
	if c.Sinks.Metrics == "cloudwatch" {
		c.AWS.UsesAWS = true
	}
}
