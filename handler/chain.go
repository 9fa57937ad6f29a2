package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"powertools/config"
	"powertools/invocation"
	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"go.uber.org/zap"
)

// DefaultHandlerName names the root segment when no worker name is given.
const DefaultHandlerName = "handler"

// HandlerFunc is the function signature for handling requests.
// This is the core processing function that middlewares wrap.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Sinks are the exporters the chain writes to.
type Sinks struct {
	Log     logger.Sink
	Trace   tracer.Exporter
	Metrics metrics.Sink
}

// Chain wraps every invocation with the logging, tracing and metrics
// interceptors. It is built once per process and is safe for concurrent
// invocations.
type Chain struct {
	cfg     *config.Config
	process *invocation.Process
	sampler invocation.Source
	diag    *zap.Logger

	logger  *logger.Logger
	tracer  *tracer.Tracer
	emitter *metrics.Emitter

	handlerName       string
	buildInterceptors func(c *Chain) []Interceptor
	interceptors      []Interceptor
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithProcess sets the process lifecycle that decides the cold start.
// Tests use a fresh invocation.NewProcess per chain.
func WithProcess(p *invocation.Process) ChainOption {
	return func(c *Chain) {
		if p != nil {
			c.process = p
		}
	}
}

// WithSampler sets the random source of the sampling decision.
func WithSampler(src invocation.Source) ChainOption {
	return func(c *Chain) {
		if src != nil {
			c.sampler = src
		}
	}
}

// WithDiagnostics sets the logger for the chain's own warnings. It is
// passed on to the logger, tracer and emitter.
func WithDiagnostics(diag *zap.Logger) ChainOption {
	return func(c *Chain) {
		if diag != nil {
			c.diag = diag
		}
	}
}

// WithHandlerName names the root segment "## <name>".
func WithHandlerName(name string) ChainOption {
	return func(c *Chain) {
		if name != "" {
			c.handlerName = name
		}
	}
}

// WithInterceptors replaces the default Logging, Tracing, Metrics list.
// build runs once the chain's logger, tracer and emitter exist, so it can
// reuse them through the built-in interceptor constructors.
func WithInterceptors(build func(c *Chain) []Interceptor) ChainOption {
	return func(c *Chain) {
		c.buildInterceptors = build
	}
}

// NewChain validates cfg and builds the logger, tracer and emitter on top of
// sinks. Configuration problems are returned as *config.ConfigurationError
// here rather than at the first invocation.
func NewChain(cfg *config.Config, sinks Sinks, opts ...ChainOption) (*Chain, error) {
	if cfg == nil {
		return nil, config.NewConfigurationError("config", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var problems []config.Problem
	if sinks.Log == nil {
		problems = append(problems, config.Problem{Field: "Sinks.Log", Reason: "is required"})
	}
	if sinks.Trace == nil {
		problems = append(problems, config.Problem{Field: "Sinks.Trace", Reason: "is required"})
	}
	if sinks.Metrics == nil {
		problems = append(problems, config.Problem{Field: "Sinks.Metrics", Reason: "is required"})
	}
	if len(problems) > 0 {
		return nil, &config.ConfigurationError{Problems: problems}
	}

	c := &Chain{
		cfg:         cfg,
		process:     invocation.Default(),
		sampler:     invocation.GlobalSource,
		diag:        zap.NewNop(),
		handlerName: DefaultHandlerName,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.buildComponents(sinks); err != nil {
		return nil, err
	}

	if c.buildInterceptors != nil {
		c.interceptors = c.buildInterceptors(c)
	} else {
		c.interceptors = []Interceptor{
			LoggingInterceptor(c.logger),
			TracingInterceptor(c.tracer, c.handlerName, c.CaptureMode()),
			MetricsInterceptor(c.emitter),
		}
	}
	if len(c.interceptors) == 0 {
		c.diag.Warn("chain has no interceptors")
	}

	for _, notice := range cfg.Notices {
		c.diag.Warn("configuration value ignored", zap.String("notice", notice))
	}
	return c, nil
}

func (c *Chain) buildComponents(sinks Sinks) error {
	cfg := c.cfg

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return config.NewConfigurationError("POWERTOOLS_LOG_LEVEL", err.Error())
	}
	sampleLevel, err := logger.ParseLevel(cfg.Logging.SampleLevel)
	if err != nil {
		return config.NewConfigurationError("POWERTOOLS_LOGGER_SAMPLE_LEVEL", err.Error())
	}

	c.logger, err = logger.New(logger.Config{
		Service:           cfg.ServiceName,
		Level:             level,
		SamplingRate:      cfg.Logging.SamplingRate,
		SampleLevel:       sampleLevel,
		LogEvent:          cfg.Logging.LogEvent,
		MaxEventBytes:     cfg.Logging.MaxEventBytes,
		CorrelationIDPath: cfg.Logging.CorrelationIDPath,
	}, sinks.Log, logger.WithDiagnostics(c.diag))
	if err != nil {
		return config.NewConfigurationError("Logging", err.Error())
	}

	c.tracer = tracer.New(sinks.Trace,
		tracer.WithService(cfg.ServiceName),
		tracer.WithNamespace(cfg.Tracing.Namespace),
		tracer.WithDisabled(cfg.Tracing.Disabled),
		tracer.WithDiagnostics(c.diag),
	)

	defaults, err := defaultDimensions(cfg.Metrics.DefaultDimensions)
	if err != nil {
		return config.NewConfigurationError("POWERTOOLS_METRICS_DEFAULT_DIMENSIONS", err.Error())
	}
	c.emitter, err = metrics.NewEmitter(metrics.Config{
		Namespace:           cfg.Metrics.Namespace,
		Service:             cfg.ServiceName,
		CaptureColdStart:    cfg.Metrics.CaptureColdStart,
		RaiseOnEmptyMetrics: cfg.Metrics.RaiseOnEmpty,
		Disabled:            cfg.Metrics.Disabled,
		DefaultDimensions:   defaults,
	}, sinks.Metrics, metrics.WithDiagnostics(c.diag))
	if err != nil {
		return config.NewConfigurationError("Metrics", err.Error())
	}
	return nil
}

// defaultDimensions orders the configured dimensions by name.
func defaultDimensions(dims map[string]string) (metrics.DimensionSet, error) {
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	var set metrics.DimensionSet
	for _, name := range names {
		if err := set.Add(name, dims[name]); err != nil {
			return metrics.DimensionSet{}, err
		}
	}
	return set, nil
}

// Logger returns the process-wide structured logger.
func (c *Chain) Logger() *logger.Logger { return c.logger }

// Tracer returns the tracer.
func (c *Chain) Tracer() *tracer.Tracer { return c.tracer }

// Metrics returns the metrics emitter.
func (c *Chain) Metrics() *metrics.Emitter { return c.emitter }

// Process returns the process lifecycle.
func (c *Chain) Process() *invocation.Process { return c.process }

// Config returns the configuration the chain was built from.
func (c *Chain) Config() *config.Config { return c.cfg }

// HandlerName returns the name of the root segment, without prefix.
func (c *Chain) HandlerName() string { return c.handlerName }

// CaptureMode returns the configured capture mode, or combines the capture
// flags when no mode is set.
func (c *Chain) CaptureMode() tracer.CaptureMode {
	if c.cfg.Tracing.CaptureMode != "" {
		if mode, err := tracer.ParseCaptureMode(c.cfg.Tracing.CaptureMode); err == nil {
			return mode
		}
	}
	return tracer.CaptureModeFor(c.cfg.Tracing.CaptureResponse, c.cfg.Tracing.CaptureError)
}

// Invoke runs h for one invocation inside the interceptors.
//
// The error returned by h is returned unchanged. A panic in h closes every
// scope with the FAULT status and then continues. When ctx has a deadline,
// scopes still open HANDLER_TIMEOUT_GRACE before it are closed as timed out;
// whatever h does afterwards is ignored by the closed scopes.
func (c *Chain) Invoke(ctx context.Context, h HandlerFunc, req Request) (resp any, err error) {
	coldStart := c.process.Begin()
	inv := invocation.New(ctx, coldStart)
	if req.ID != "" && inv.FunctionARN == "" {
		// Outside Lambda the adapter's request id is the invocation id.
		inv.ID = req.ID
	}
	inv.Sampled = invocation.Sample(c.cfg.Logging.SamplingRate, c.sampler)
	ctx = invocation.NewContext(ctx, inv)

	scopes := &openScopes{}
	for _, ic := range c.interceptors {
		next, closer, openErr := c.open(ctx, ic, inv, req)
		if openErr != nil {
			c.teardown(ctx, scopes, Outcome{Err: openErr})
			return nil, fmt.Errorf("handler: open %s interceptor: %w", ic.Name(), openErr)
		}
		ctx = next
		scopes.push(ic.Name(), closer)
	}

	stop := c.armFinalizer(ctx, inv, scopes)
	defer func() {
		if r := recover(); r != nil {
			stop()
			c.teardown(ctx, scopes, Outcome{Panic: r})
			panic(r)
		}
	}()

	resp, err = h(ctx, req)
	stop()

	teardownErr := c.teardown(ctx, scopes, Outcome{Response: resp, Err: err})
	if err == nil && teardownErr != nil {
		return resp, teardownErr
	}
	return resp, err
}

func (c *Chain) open(ctx context.Context, ic Interceptor, inv *invocation.Invocation, req Request) (next context.Context, closer Closer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	next, closer, err = ic.Open(ctx, inv, req)
	if err == nil && closer == nil {
		closer = CloserFunc(func(context.Context, Outcome) error { return nil })
	}
	if next == nil {
		next = ctx
	}
	return next, closer, err
}

// armFinalizer schedules the timeout finalization pass and returns the
// function cancelling it.
func (c *Chain) armFinalizer(ctx context.Context, inv *invocation.Invocation, scopes *openScopes) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}
	wait := time.Until(deadline) - c.cfg.Handler.TimeoutGrace
	if wait < 0 {
		wait = 0
	}
	timer := time.AfterFunc(wait, func() {
		c.diag.Warn("invocation about to time out, finalizing open scopes",
			zap.String("invocation_id", inv.ID), zap.Time("deadline", deadline))
		c.teardown(ctx, scopes, Outcome{TimedOut: true})
	})
	return func() { timer.Stop() }
}

// teardown closes the open scopes once and flushes the buffering sinks.
// Close errors are logged; they are returned only for the caller to decide
// whether they replace a successful result.
func (c *Chain) teardown(ctx context.Context, scopes *openScopes, out Outcome) error {
	ctx = context.WithoutCancel(ctx)

	errs, ran := scopes.closeAll(ctx, out)
	if !ran {
		return nil
	}
	c.flush(ctx)

	for _, err := range errs {
		c.diag.Warn("interceptor teardown failed", zap.Error(err))
	}
	if len(errs) == 0 {
		return nil
	}
	return &TeardownError{Errors: errs}
}

func (c *Chain) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Handler.FlushTimeout)
	defer cancel()

	flushers := []struct {
		name  string
		flush func(context.Context) error
	}{
		{"logs", c.logger.Flush},
		{"traces", c.tracer.Flush},
		{"metrics", c.emitter.Flush},
	}
	for _, f := range flushers {
		if err := f.flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.diag.Debug("sink flush failed", zap.String("sink", f.name), zap.Error(err))
		}
	}
}

// openScopes is the stack of closers of one invocation. It is closed once,
// either by the handler returning or by the timeout finalizer.
type openScopes struct {
	mu      sync.Mutex
	names   []string
	closers []Closer
	closed  bool
}

func (s *openScopes) push(name string, closer Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.closers = append(s.closers, closer)
}

// closeAll closes the scopes in reverse opening order. It reports false
// when the scopes were already closed.
func (s *openScopes) closeAll(ctx context.Context, out Outcome) ([]error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.closed = true

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := safeClose(ctx, s.closers[i], out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.names[i], err))
		}
	}
	return errs, true
}

func safeClose(ctx context.Context, closer Closer, out Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return closer.Close(ctx, out)
}
