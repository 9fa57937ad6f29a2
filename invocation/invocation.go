// Package invocation holds the per-call identity that every interceptor in
// the chain reads, and the process lifecycle that decides which call is the
// cold start.
package invocation

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-xray-sdk-go/header"
	"github.com/google/uuid"
)

// traceHeaderKey is the context key the aws-lambda-go runtime uses for the
// X-Ray trace header of the current event.
const traceHeaderKey = "x-amzn-trace-id"

// traceHeaderEnv is the environment variable the Lambda runtime refreshes
// with the trace header before every invocation.
const traceHeaderEnv = "_X_AMZN_TRACE_ID"

// Invocation is the identity of one handler call.
// It is created by the chain for every call and never shared between calls.
type Invocation struct {
	// ID is the request id assigned by the runtime, or a random UUID when
	// the handler runs outside Lambda.
	ID string

	// ColdStart is true only for the first invocation served by the process.
	ColdStart bool

	// Sampled reports whether this invocation was selected for debug logging.
	Sampled bool

	StartTime time.Time
	Deadline  time.Time

	FunctionName    string
	FunctionVersion string
	FunctionARN     string
	MemoryLimitMB   int

	// TraceID and ParentID come from the X-Ray trace header when present.
	TraceID      string
	ParentID     string
	TraceSampled bool
	TraceHeader  string
}

// New builds an Invocation from the runtime metadata carried by ctx.
func New(ctx context.Context, coldStart bool) *Invocation {
	inv := &Invocation{
		ColdStart:       coldStart,
		StartTime:       time.Now(),
		FunctionName:    lambdacontext.FunctionName,
		FunctionVersion: lambdacontext.FunctionVersion,
		MemoryLimitMB:   lambdacontext.MemoryLimitInMB,
	}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		inv.ID = lc.AwsRequestID
		inv.FunctionARN = lc.InvokedFunctionArn
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	if deadline, ok := ctx.Deadline(); ok {
		inv.Deadline = deadline
	}

	inv.applyTraceHeader(traceHeader(ctx))
	return inv
}

// RemainingTime returns the time left before the runtime deadline, or zero
// when no deadline is known.
func (i *Invocation) RemainingTime() time.Duration {
	if i.Deadline.IsZero() {
		return 0
	}
	return time.Until(i.Deadline)
}

func (i *Invocation) applyTraceHeader(raw string) {
	if raw == "" {
		return
	}
	h := header.FromString(raw)
	i.TraceHeader = raw
	i.TraceID = h.TraceID
	i.ParentID = h.ParentID
	i.TraceSampled = h.SamplingDecision == header.Sampled
}

// traceHeader prefers the header attached to the event context and falls
// back to the environment variable set by the runtime.
func traceHeader(ctx context.Context) string {
	if v, ok := ctx.Value(traceHeaderKey).(string); ok && v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(traceHeaderEnv))
}
