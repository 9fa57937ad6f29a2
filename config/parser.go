package config

// parse reads configuration from environment variables
func parse(r *envReader) *Config {
	sinks := DefaultSinkConfig()
	if IsLambda() {
		sinks.Trace = "xray"
	}

	cfg := &Config{
		// Core
		Environment: r.getEnv("ENVIRONMENT", r.getEnv("ENV", "local")),
		ServiceName: r.getEnv("POWERTOOLS_SERVICE_NAME", DefaultServiceName),

		// Logging
		Logging: LoggingConfig{
			Level:             r.getEnv("POWERTOOLS_LOG_LEVEL", r.getEnv("LOG_LEVEL", DefaultLogLevel)),
			SamplingRate:      r.getFloat64("POWERTOOLS_LOGGER_SAMPLE_RATE", 0),
			SampleLevel:       r.getEnv("POWERTOOLS_LOGGER_SAMPLE_LEVEL", DefaultSampleLevel),
			LogEvent:          r.getBool("POWERTOOLS_LOGGER_LOG_EVENT", false),
			MaxEventBytes:     r.getInt("POWERTOOLS_LOGGER_MAX_EVENT_BYTES", DefaultMaxEventBytes),
			CorrelationIDPath: r.getEnv("POWERTOOLS_LOGGER_CORRELATION_ID_PATH", ""),
		},

		// Tracing
		Tracing: TracingConfig{
			Disabled:        r.getBool("POWERTOOLS_TRACE_DISABLED", false),
			CaptureResponse: r.getBool("POWERTOOLS_TRACER_CAPTURE_RESPONSE", false),
			CaptureError:    r.getBool("POWERTOOLS_TRACER_CAPTURE_ERROR", false),
			CaptureMode:     r.getEnv("POWERTOOLS_TRACER_CAPTURE_MODE", ""),
			Namespace:       r.getEnv("POWERTOOLS_TRACER_NAMESPACE", ""),
		},

		// Metrics
		Metrics: MetricsConfig{
			Namespace:         r.getEnv("POWERTOOLS_METRICS_NAMESPACE", ""),
			Disabled:          r.getBool("POWERTOOLS_METRICS_DISABLED", false),
			CaptureColdStart:  r.getBool("POWERTOOLS_METRICS_CAPTURE_COLD_START", false),
			RaiseOnEmpty:      r.getBool("POWERTOOLS_METRICS_RAISE_ON_EMPTY", false),
			DefaultDimensions: r.getMap("POWERTOOLS_METRICS_DEFAULT_DIMENSIONS"),
		},

		// Sink selection
		Sinks: SinkConfig{
			Log:     r.getEnv("POWERTOOLS_LOG_SINK", sinks.Log),
			Trace:   r.getEnv("POWERTOOLS_TRACE_EXPORTER", sinks.Trace),
			Metrics: r.getEnv("POWERTOOLS_METRICS_SINK", sinks.Metrics),
		},

		// AWS
		AWS: AWSConfig{
			Region:             r.getEnv("AWS_REGION", r.getEnv("AWS_DEFAULT_REGION", DefaultRegion)),
			Endpoint:           r.getEnv("S3_ENDPOINT", ""),
			AccessKeyID:        r.getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:    r.getEnv("AWS_SECRET_ACCESS_KEY", ""),
			LogGroup:           r.getEnv("POWERTOOLS_CLOUDWATCH_LOG_GROUP", ""),
			TraceArchiveBucket: r.getEnv("POWERTOOLS_TRACE_ARCHIVE_BUCKET", ""),
			MaxRetries:         r.getInt("AWS_MAX_ATTEMPTS", 3),
		},

		// OpenTelemetry
		OTel: OTelConfig{
			Endpoint: r.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure: r.getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},

		// Handler
		Handler: HandlerConfig{
			Timeout:        r.getDuration("HANDLER_TIMEOUT", DefaultTimeout),
			TimeoutGrace:   r.getDuration("HANDLER_TIMEOUT_GRACE", DefaultTimeoutGrace),
			FlushTimeout:   r.getDuration("HANDLER_FLUSH_TIMEOUT", DefaultFlushTimeout),
			MaxRequestSize: int64(r.getInt("HANDLER_MAX_REQUEST_SIZE", DefaultMaxRequestSize)),
			Addr:           r.getEnv("HTTP_ADDR", DefaultAddr),
			Platform:       r.getEnv("HANDLER_PLATFORM", ""),
			EnableHealth:   r.getBool("HANDLER_ENABLE_HEALTH", true),
			EnableMetrics:  r.getBool("HANDLER_ENABLE_METRICS", true),
		},
	}

	cfg.applyDefaults()
	cfg.Notices = append(cfg.Notices, r.notices...)
	return cfg
}
