package handler

import (
	"os"

	"powertools/config"
)

// Platform names.
const (
	PlatformLambda = "lambda"
	PlatformHTTP   = "http"
)

// Factory provides methods for creating handlers with proper configuration
// and middleware setup.
type Factory struct {
	worker   Worker
	cfg      *config.Config
	sinks    Sinks
	opts     []ChainOption
	recovery bool
}

// NewFactory creates a new handler factory for worker. Sinks are usually
// built by observability.NewSinks from the same configuration.
func NewFactory(worker Worker, cfg *config.Config, sinks Sinks) *Factory {
	return &Factory{
		worker: worker,
		cfg:    cfg,
		sinks:  sinks,
	}
}

// WithChainOptions adds options passed to NewChain.
func (f *Factory) WithChainOptions(opts ...ChainOption) *Factory {
	f.opts = append(f.opts, opts...)
	return f
}

// WithRecovery installs the Recovery middleware, turning panics into
// errors.
func (f *Factory) WithRecovery() *Factory {
	f.recovery = true
	return f
}

// Create builds the chain and the handler for the detected or configured
// platform. Configuration problems are returned as
// *config.ConfigurationError.
func (f *Factory) Create() (*Handler, error) {
	if f.cfg == nil {
		return nil, config.NewConfigurationError("config", "is required")
	}

	// Detect platform if not set
	if f.cfg.Handler.Platform == "" || f.cfg.Handler.Platform == "auto" {
		f.cfg.Handler.Platform = DetectPlatform()
	}

	opts := append([]ChainOption{WithHandlerName(f.worker.Name())}, f.opts...)
	chain, err := NewChain(f.cfg, f.sinks, opts...)
	if err != nil {
		return nil, err
	}

	handler := NewHandler(f.worker, chain)
	f.applyDefaultMiddleware(handler)
	return handler, nil
}

// CreateHTTP creates a handler specifically for the local HTTP adapter.
func (f *Factory) CreateHTTP() (*Handler, error) {
	if f.cfg != nil {
		f.cfg.Handler.Platform = PlatformHTTP
	}
	return f.Create()
}

// CreateLambda creates a handler specifically for AWS Lambda.
func (f *Factory) CreateLambda() (*Handler, error) {
	if f.cfg != nil {
		f.cfg.Handler.Platform = PlatformLambda
	}
	return f.Create()
}

// applyDefaultMiddleware adds the standard middleware stack.
func (f *Factory) applyDefaultMiddleware(handler *Handler) {
	// Recovery middleware (outermost - catches all panics)
	if f.recovery {
		handler.Use(Recovery())
	}

	// Validation middleware
	handler.Use(Validation(f.cfg.Handler.MaxRequestSize))
}

// DetectPlatform attempts to detect the runtime platform from environment.
func DetectPlatform() string {
	// Check for Lambda runtime
	if _, exists := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME"); exists {
		return PlatformLambda
	}

	// Check for Lambda runtime API (another Lambda indicator)
	if _, exists := os.LookupEnv("AWS_LAMBDA_RUNTIME_API"); exists {
		return PlatformLambda
	}

	// Default to HTTP
	return PlatformHTTP
}
