package metrics

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxNamespaceLength      = 255
	maxMetricNameLength     = 255
	maxDimensionNameLength  = 250
	maxDimensionValueLength = 1024
	// MaxDimensions is the largest number of dimensions in one set.
	MaxDimensions = 30
	// MaxMetricsPerRecord is the largest number of metric names in one
	// record; larger batches are split.
	MaxMetricsPerRecord = 100
)

var (
	ErrInvalidNamespace = errors.New("invalid metrics namespace")
	ErrInvalidService   = errors.New("invalid metrics service")
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrInvalidMetric    = errors.New("invalid metric")
	// ErrNoMetrics is returned by Flush when nothing was recorded and the
	// emitter was built with RaiseOnEmptyMetrics.
	ErrNoMetrics = errors.New("no metrics were emitted")
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9._#/]+$`)

// ValidateNamespace checks a CloudWatch metrics namespace.
func ValidateNamespace(namespace string) error {
	switch {
	case namespace == "":
		return fmt.Errorf("%w: namespace is required", ErrInvalidNamespace)
	case len(namespace) > maxNamespaceLength:
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidNamespace, namespace, maxNamespaceLength)
	case !namespacePattern.MatchString(namespace):
		return fmt.Errorf("%w: %q must match %s", ErrInvalidNamespace, namespace, namespacePattern)
	}
	return nil
}

// ValidateDimension checks one dimension name and value.
func ValidateDimension(name, value string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidDimension)
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%w: value of %q is blank", ErrInvalidDimension, name)
	case len(name) > maxDimensionNameLength:
		return fmt.Errorf("%w: name %q is longer than %d characters", ErrInvalidDimension, name, maxDimensionNameLength)
	case len(value) > maxDimensionValueLength:
		return fmt.Errorf("%w: value of %q is longer than %d characters", ErrInvalidDimension, name, maxDimensionValueLength)
	case strings.HasPrefix(name, ":"):
		return fmt.Errorf("%w: name %q must not start with ':'", ErrInvalidDimension, name)
	case !printableASCII(name):
		return fmt.Errorf("%w: name %q must be printable ASCII", ErrInvalidDimension, name)
	case !printableASCII(value):
		return fmt.Errorf("%w: value of %q must be printable ASCII", ErrInvalidDimension, name)
	}
	return nil
}

func validateMetric(name string, value float64, unit Unit) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidMetric)
	case len(name) > maxMetricNameLength:
		return fmt.Errorf("%w: name %q is longer than %d characters", ErrInvalidMetric, name, maxMetricNameLength)
	case math.IsNaN(value) || math.IsInf(value, 0):
		return fmt.Errorf("%w: value of %q is not finite", ErrInvalidMetric, name)
	case !unit.Valid():
		return fmt.Errorf("%w: unknown unit %q for %q", ErrInvalidMetric, unit, name)
	}
	return nil
}

func printableASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
