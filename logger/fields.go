package logger

// Field names written on every record.
const (
	FieldTimestamp          = "timestamp"
	FieldLevel              = "level"
	FieldMessage            = "message"
	FieldService            = "service"
	FieldSamplingRate       = "sampling_rate"
	FieldColdStart          = "cold_start"
	FieldFunctionName       = "function_name"
	FieldFunctionVersion    = "function_version"
	FieldFunctionARN        = "function_arn"
	FieldFunctionMemorySize = "function_memory_size"
	FieldFunctionRequestID  = "function_request_id"
	FieldXRayTraceID        = "xray_trace_id"
	FieldCorrelationID      = "correlation_id"
	FieldEvent              = "event"
	FieldEventTruncated     = "event_truncated"
	FieldEventSize          = "event_size"
)

// Correlation id paths for common event sources.
const (
	CorrelationAPIGatewayREST = "/requestContext/requestId"
	CorrelationAPIGatewayHTTP = "/requestContext/requestId"
	CorrelationALB            = "/headers/x-amzn-trace-id"
	CorrelationEventBridge    = "/id"
)
