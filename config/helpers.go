package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed values from the environment. Values that are set
// but cannot be parsed fall back to the default and leave a notice.
type envReader struct {
	lookup  func(string) (string, bool)
	notices []string
}

func newEnvReader() *envReader {
	return &envReader{lookup: os.LookupEnv}
}

func (r *envReader) raw(key string) (string, bool) {
	value, ok := r.lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) notice(key, value string, err error) {
	r.notices = append(r.notices, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
}

// getEnv gets environment variable with default value
func (r *envReader) getEnv(key, defaultValue string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return defaultValue
}

// getInt gets environment variable as int with default value
func (r *envReader) getInt(key string, defaultValue int) int {
	value, ok := r.raw(key)
	if !ok {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.notice(key, value, err)
		return defaultValue
	}
	return intVal
}

// getBool gets environment variable as bool with default value
func (r *envReader) getBool(key string, defaultValue bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.notice(key, value, err)
		return defaultValue
	}
	return boolVal
}

// getFloat64 gets environment variable as float64 with default value
func (r *envReader) getFloat64(key string, defaultValue float64) float64 {
	value, ok := r.raw(key)
	if !ok {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.notice(key, value, err)
		return defaultValue
	}
	return floatVal
}

// getDuration gets environment variable as duration with default value
func (r *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		r.notice(key, value, err)
		return defaultValue
	}
	return duration
}

// getMap reads a comma separated list of name=value pairs.
func (r *envReader) getMap(key string) map[string]string {
	value, ok := r.raw(key)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		name, val, found := strings.Cut(pair, "=")
		name, val = strings.TrimSpace(name), strings.TrimSpace(val)
		if !found || name == "" {
			r.notice(key, pair, fmt.Errorf("expected name=value"))
			continue
		}
		out[name] = val
	}
	return out
}

// IsLambda detects if running in AWS Lambda
func IsLambda() bool {
	// AWS Lambda sets these environment variables
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" ||
		os.Getenv("LAMBDA_TASK_ROOT") != "" ||
		os.Getenv("AWS_EXECUTION_ENV") != ""
}
