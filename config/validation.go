package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/go-openapi/jsonpointer"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator with the custom rules
// registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report problems under the environment variable name
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			return fld.Tag.Get("env")
		})

		mustRegister("loglevel", func(fl validator.FieldLevel) bool {
			_, err := logger.ParseLevel(fl.Field().String())
			return err == nil
		})
		mustRegister("metricsnamespace", func(fl validator.FieldLevel) bool {
			return metrics.ValidateNamespace(fl.Field().String()) == nil
		})
		mustRegister("capturemode", func(fl validator.FieldLevel) bool {
			_, err := tracer.ParseCaptureMode(fl.Field().String())
			return err == nil
		})
		mustRegister("jsonpointer", func(fl validator.FieldLevel) bool {
			_, err := jsonpointer.New(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("config: register %s validation: %v", tag, err))
	}
}

// Validate checks the whole configuration and returns a
// *ConfigurationError listing every problem.
func (c *Config) Validate() error {
	var problems []Problem

	if err := getValidator().Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return NewConfigurationError("config", err.Error())
		}
		for _, fe := range fieldErrors {
			problems = append(problems, Problem{Field: fe.Field(), Reason: reason(fe)})
		}
	}

	for name, value := range c.Metrics.DefaultDimensions {
		if err := metrics.ValidateDimension(name, value); err != nil {
			problems = append(problems, Problem{Field: "POWERTOOLS_METRICS_DEFAULT_DIMENSIONS", Reason: err.Error()})
		}
	}
	if c.Sinks.Trace == "s3" && c.AWS.TraceArchiveBucket == "" {
		problems = append(problems, Problem{Field: "POWERTOOLS_TRACE_ARCHIVE_BUCKET", Reason: "is required when POWERTOOLS_TRACE_EXPORTER=s3"})
	}
	if c.Sinks.Trace == "otel" && c.OTel.Endpoint == "" {
		problems = append(problems, Problem{Field: "OTEL_EXPORTER_OTLP_ENDPOINT", Reason: "is required when POWERTOOLS_TRACE_EXPORTER=otel"})
	}
	if c.Handler.TimeoutGrace >= c.Handler.Timeout && c.Handler.Timeout > 0 {
		problems = append(problems, Problem{Field: "HANDLER_TIMEOUT_GRACE", Reason: "must be shorter than HANDLER_TIMEOUT"})
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// reason returns a human-readable message for a validation error
func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "loglevel":
		return fmt.Sprintf("%q is not a log level", fe.Value())
	case "metricsnamespace":
		return fmt.Sprintf("%q is not a valid metrics namespace", fe.Value())
	case "capturemode":
		return fmt.Sprintf("%q is not a capture mode", fe.Value())
	case "jsonpointer":
		return fmt.Sprintf("%q is not a JSON pointer", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
