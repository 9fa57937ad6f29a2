package tracer

import (
	"fmt"
	"strings"
	"time"
)

// Status is the final outcome recorded on a closed segment.
type Status int

const (
	StatusOK Status = iota
	// StatusError marks a failure returned by the traced code.
	StatusError
	// StatusFault marks a panic, a timeout or a segment that was still open
	// when its parent closed.
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusFault:
		return "FAULT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText writes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a status written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "OK":
		*s = StatusOK
	case "ERROR":
		*s = StatusError
	case "FAULT":
		*s = StatusFault
	default:
		return fmt.Errorf("tracer: unknown status %q", text)
	}
	return nil
}

// State is the lifecycle position of a segment.
type State int

const (
	StateCreated State = iota
	StateOpen
	StateClosed
)

// CaptureMode decides what the root segment of an invocation records when it
// closes.
type CaptureMode int

const (
	CaptureDisabled CaptureMode = iota
	CaptureResponse
	CaptureError
	CaptureResponseAndError
)

// ParseCaptureMode accepts DISABLED, RESPONSE, ERROR and RESPONSE_AND_ERROR.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DISABLED":
		return CaptureDisabled, nil
	case "RESPONSE":
		return CaptureResponse, nil
	case "ERROR":
		return CaptureError, nil
	case "RESPONSE_AND_ERROR":
		return CaptureResponseAndError, nil
	default:
		return CaptureDisabled, fmt.Errorf("unknown capture mode %q", s)
	}
}

// CaptureModeFor combines the two capture switches into a mode.
func CaptureModeFor(response, err bool) CaptureMode {
	switch {
	case response && err:
		return CaptureResponseAndError
	case response:
		return CaptureResponse
	case err:
		return CaptureError
	default:
		return CaptureDisabled
	}
}

func (m CaptureMode) String() string {
	switch m {
	case CaptureResponse:
		return "RESPONSE"
	case CaptureError:
		return "ERROR"
	case CaptureResponseAndError:
		return "RESPONSE_AND_ERROR"
	default:
		return "DISABLED"
	}
}

// CapturesResponse reports whether successful results are recorded.
func (m CaptureMode) CapturesResponse() bool {
	return m == CaptureResponse || m == CaptureResponseAndError
}

// CapturesError reports whether failures are recorded.
func (m CaptureMode) CapturesError() bool {
	return m == CaptureError || m == CaptureResponseAndError
}

// ErrorInfo describes a failure recorded on a segment.
type ErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Stack   string `json:"stack,omitempty"`
}

// SegmentData is the immutable copy of a closed segment handed to an
// Exporter, together with its whole subtree.
type SegmentData struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	// Sampled mirrors the sampling flag of the incoming trace header.
	Sampled   bool   `json:"sampled"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`

	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`

	Status   Status `json:"status"`
	TimedOut bool   `json:"timed_out,omitempty"`

	Annotations map[string]any            `json:"annotations,omitempty"`
	Metadata    map[string]map[string]any `json:"metadata,omitempty"`

	Input  any        `json:"input,omitempty"`
	Output any        `json:"output,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Children []*SegmentData `json:"subsegments,omitempty"`
}

// Duration returns the time the segment was open.
func (d *SegmentData) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// Walk calls fn for d and every descendant, parents before children.
func (d *SegmentData) Walk(fn func(seg *SegmentData, depth int)) {
	d.walk(fn, 0)
}

func (d *SegmentData) walk(fn func(*SegmentData, int), depth int) {
	fn(d, depth)
	for _, c := range d.Children {
		c.walk(fn, depth+1)
	}
}
