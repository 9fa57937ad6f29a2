// Package infraobs builds the sinks of the invocation chain from the
// configured sink selection.
package infraobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"powertools/config"
	"powertools/handler"
	cwadapter "powertools/infrastructure/observability/adapters/cloudwatch"
	otelbridge "powertools/infrastructure/observability/adapters/otel"
	promadapter "powertools/infrastructure/observability/adapters/prometheus"
	s3adapter "powertools/infrastructure/observability/adapters/s3"
	"powertools/infrastructure/observability/adapters/stdout"
	xrayadapter "powertools/infrastructure/observability/adapters/xray"
	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// awsHTTPTimeout bounds a single AWS API call made by a sink.
const awsHTTPTimeout = 10 * time.Second

// ShutdownFunc flushes and stops every sink that buffers.
type ShutdownFunc func(ctx context.Context) error

// Factory creates sinks.
type Factory struct {
	diag          *zap.Logger
	writer        io.Writer
	registerer    prometheus.Registerer
	meterProvider metric.MeterProvider
	awsConfig     *aws.Config
}

// Option configures a Factory.
type Option func(*Factory)

// WithDiagnostics sets the logger for sink failures and breaker changes.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(f *Factory) {
		if diag != nil {
			f.diag = diag
		}
	}
}

// WithWriter replaces os.Stdout for the stdout sinks.
func WithWriter(w io.Writer) Option {
	return func(f *Factory) { f.writer = w }
}

// WithRegisterer replaces the default Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Factory) { f.registerer = reg }
}

// WithMeterProvider replaces the global OTel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(f *Factory) { f.meterProvider = mp }
}

// WithAWSConfig skips loading the AWS configuration from the environment.
func WithAWSConfig(cfg aws.Config) Option {
	return func(f *Factory) { f.awsConfig = &cfg }
}

// NewFactory creates a factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{diag: zap.NewNop(), writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewSinks creates the sinks selected by cfg with a default factory.
func NewSinks(ctx context.Context, cfg *config.Config, opts ...Option) (handler.Sinks, ShutdownFunc, error) {
	return NewFactory(opts...).CreateSinks(ctx, cfg)
}

// CreateSinks creates the log sink, trace exporter and metrics sink named
// by cfg.Sinks. The returned shutdown drains and stops the buffering
// sinks; call it once the process stops serving invocations.
func (f *Factory) CreateSinks(ctx context.Context, cfg *config.Config) (handler.Sinks, ShutdownFunc, error) {
	if cfg == nil {
		return handler.Sinks{}, nil, fmt.Errorf("configuration is required")
	}

	b := &builder{factory: f, cfg: cfg}
	sinks, err := b.build(ctx)
	if err != nil {
		_ = b.shutdown(ctx)
		return handler.Sinks{}, nil, err
	}
	return sinks, b.shutdown, nil
}

type builder struct {
	factory *Factory
	cfg     *config.Config
	awsCfg  *aws.Config
	closers []ShutdownFunc
}

func (b *builder) build(ctx context.Context) (handler.Sinks, error) {
	var sinks handler.Sinks
	var err error

	if sinks.Log, err = b.logSink(ctx); err != nil {
		return sinks, fmt.Errorf("create log sink: %w", err)
	}
	if sinks.Trace, err = b.traceExporter(ctx); err != nil {
		return sinks, fmt.Errorf("create trace exporter: %w", err)
	}
	if sinks.Metrics, err = b.metricsSink(ctx); err != nil {
		return sinks, fmt.Errorf("create metrics sink: %w", err)
	}

	b.factory.diag.Debug("sinks created",
		zap.String("log", b.cfg.Sinks.Log),
		zap.String("trace", b.cfg.Sinks.Trace),
		zap.String("metrics", b.cfg.Sinks.Metrics))
	return sinks, nil
}

func (b *builder) logSink(ctx context.Context) (logger.Sink, error) {
	switch b.cfg.Sinks.Log {
	case "stdout", "":
		return stdout.NewLogSink(b.factory.writer), nil
	case "cloudwatch":
		awsCfg, err := b.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		sink := cwadapter.NewLogSink(
			cloudwatchlogs.NewFromConfig(awsCfg),
			b.cfg.AWS.LogGroup,
			cwadapter.NewLogStreamName(b.cfg.ServiceName),
			cwadapter.WithDiagnostics(b.factory.diag),
		)
		b.closers = append(b.closers, sink.Close)
		return sink, nil
	case "none":
		return logger.SinkFunc(func(logger.Record) error { return nil }), nil
	default:
		return nil, fmt.Errorf("unknown log sink %q", b.cfg.Sinks.Log)
	}
}

func (b *builder) traceExporter(ctx context.Context) (tracer.Exporter, error) {
	switch b.cfg.Sinks.Trace {
	case "stdout", "":
		return stdout.NewTraceExporter(b.factory.writer), nil
	case "xray":
		awsCfg, err := b.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		exporter := xrayadapter.NewExporter(xray.NewFromConfig(awsCfg), xrayadapter.WithDiagnostics(b.factory.diag))
		b.closers = append(b.closers, exporter.Close)
		return exporter, nil
	case "s3":
		if b.cfg.AWS.TraceArchiveBucket == "" {
			return nil, fmt.Errorf("POWERTOOLS_TRACE_ARCHIVE_BUCKET is required for the s3 exporter")
		}
		awsCfg, err := b.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if b.cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(b.cfg.AWS.Endpoint)
				o.UsePathStyle = true
			}
		})
		archive := s3adapter.NewArchive(client, b.cfg.AWS.TraceArchiveBucket,
			s3adapter.WithPrefix(s3adapter.DefaultPrefix+"/"+b.cfg.ServiceName),
			s3adapter.WithDiagnostics(b.factory.diag),
		)
		b.closers = append(b.closers, archive.Close)
		return archive, nil
	case "otel":
		provider, shutdown, err := otelbridge.SetupProvider(ctx, otelbridge.ProviderConfig{
			ServiceName: b.cfg.ServiceName,
			Environment: b.cfg.Environment,
			Endpoint:    b.cfg.OTel.Endpoint,
			Insecure:    b.cfg.OTel.Insecure,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, shutdown)
		return otelbridge.NewTraceExporter(provider), nil
	case "none":
		return tracer.NopExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", b.cfg.Sinks.Trace)
	}
}

func (b *builder) metricsSink(ctx context.Context) (metrics.Sink, error) {
	switch b.cfg.Sinks.Metrics {
	case "emf", "":
		return stdout.NewEMFSink(b.factory.writer), nil
	case "cloudwatch":
		awsCfg, err := b.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		sink := cwadapter.NewMetricsSink(cloudwatch.NewFromConfig(awsCfg), cwadapter.WithDiagnostics(b.factory.diag))
		b.closers = append(b.closers, sink.Close)
		return sink, nil
	case "prometheus":
		return promadapter.NewMetricsSink(b.factory.registerer), nil
	case "otel":
		mp := b.factory.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		return otelbridge.NewMetricsSink(mp), nil
	case "none":
		return metrics.SinkFunc(func(context.Context, metrics.Record) error { return nil }), nil
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", b.cfg.Sinks.Metrics)
	}
}

// loadAWS loads the AWS configuration once per build.
func (b *builder) loadAWS(ctx context.Context) (aws.Config, error) {
	if b.awsCfg != nil {
		return *b.awsCfg, nil
	}
	if b.factory.awsConfig != nil {
		b.awsCfg = b.factory.awsConfig
		return *b.awsCfg, nil
	}
	cfg, err := buildAWSConfig(ctx, b.cfg.AWS)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to build AWS config: %w", err)
	}
	b.awsCfg = &cfg
	return cfg, nil
}

func (b *builder) shutdown(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	if cfg.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	// A buildable client lets the loader add a custom CA bundle.
	optFns = append(optFns, awsconfig.WithHTTPClient(
		awshttp.NewBuildableClient().WithTimeout(awsHTTPTimeout),
	))

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}
