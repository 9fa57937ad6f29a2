package tracer

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

var annotationKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// trace is the state shared by every segment of one tree.
type trace struct {
	mu       sync.Mutex
	tracer   *Tracer
	traceID  string
	parentID string
	sampled  bool
	seq      uint64
}

func (tr *trace) next() uint64 {
	tr.seq++
	return tr.seq
}

// Segment is a named, timed unit of work. A nil *Segment is valid and
// ignores every call, which is what a disabled Tracer hands out.
type Segment struct {
	tr        *trace
	id        string
	name      string
	namespace string
	parent    *Segment
	children  []*Segment

	annotations map[string]any
	metadata    map[string]map[string]any
	input       any
	output      any
	err         *ErrorInfo

	state    State
	status   Status
	timedOut bool
	start    time.Time
	end      time.Time

	openSeq  uint64
	closeSeq uint64
}

func newSegment(tr *trace, parent *Segment, name, namespace string) *Segment {
	return &Segment{
		tr:          tr,
		id:          newSegmentID(),
		name:        name,
		namespace:   namespace,
		parent:      parent,
		annotations: make(map[string]any),
		metadata:    make(map[string]map[string]any),
	}
}

// open moves the segment from CREATED to OPEN. The trace lock must be held.
func (s *Segment) open(now time.Time) {
	s.state = StateOpen
	s.start = now
	s.openSeq = s.tr.next()
}

func (s *Segment) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *Segment) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// TraceID returns the id of the trace the segment belongs to.
func (s *Segment) TraceID() string {
	if s == nil {
		return ""
	}
	return s.tr.traceID
}

// Parent returns the enclosing segment, or nil for a root.
func (s *Segment) Parent() *Segment {
	if s == nil {
		return nil
	}
	return s.parent
}

func (s *Segment) State() State {
	if s == nil {
		return StateClosed
	}
	s.tr.mu.Lock()
	defer s.tr.mu.Unlock()
	return s.state
}

func (s *Segment) Status() Status {
	if s == nil {
		return StatusOK
	}
	s.tr.mu.Lock()
	defer s.tr.mu.Unlock()
	return s.status
}

// PutAnnotation records an indexed value. Keys may only hold letters,
// digits and underscores; values must be strings, booleans or numbers.
// Invalid annotations are dropped with a warning.
func (s *Segment) PutAnnotation(key string, value any) {
	if s == nil {
		return
	}
	if !annotationKeyPattern.MatchString(key) {
		s.warn("ignoring annotation with invalid key", zap.String("key", key))
		return
	}
	if !isScalar(value) {
		s.warn("ignoring annotation with non-scalar value",
			zap.String("key", key), zap.String("type", fmt.Sprintf("%T", value)))
		return
	}

	s.mutate("annotation", func() {
		s.annotations[key] = value
	})
}

// PutMetadata records a free-form value under the segment's namespace.
func (s *Segment) PutMetadata(key string, value any) {
	if s == nil {
		return
	}
	s.PutNamespacedMetadata(s.namespace, key, value)
}

// PutNamespacedMetadata records a free-form value under namespace.
func (s *Segment) PutNamespacedMetadata(namespace, key string, value any) {
	if s == nil {
		return
	}
	s.mutate("metadata", func() {
		ns, ok := s.metadata[namespace]
		if !ok {
			ns = make(map[string]any)
			s.metadata[namespace] = ns
		}
		ns[key] = value
	})
}

// SetInput records the input of the traced work.
func (s *Segment) SetInput(v any) {
	if s == nil {
		return
	}
	s.mutate("input", func() { s.input = v })
}

// SetOutput records the result of the traced work.
func (s *Segment) SetOutput(v any) {
	if s == nil {
		return
	}
	s.mutate("output", func() { s.output = v })
}

// AddError records err and marks the segment as failed.
func (s *Segment) AddError(err error) {
	if s == nil || err == nil {
		return
	}
	info := errorInfo(err)
	s.mutate("error", func() {
		s.err = info
		if s.status < StatusError {
			s.status = StatusError
		}
	})
}

// Close ends the segment. A non-nil err is recorded and sets the ERROR
// status. Closing a closed segment is a no-op with a warning.
func (s *Segment) Close(err error) {
	if s == nil {
		return
	}
	status := StatusOK
	var info *ErrorInfo
	if err != nil {
		status = StatusError
		info = errorInfo(err)
	}
	s.finish(status, info, false)
}

// Fault ends the segment with the FAULT status.
func (s *Segment) Fault(err error) {
	if s == nil {
		return
	}
	var info *ErrorInfo
	if err != nil {
		info = errorInfo(err)
	}
	s.finish(StatusFault, info, false)
}

// CloseWithStatus ends the segment with status and records no error
// details. It is used when errors are not captured.
func (s *Segment) CloseWithStatus(status Status) {
	if s == nil {
		return
	}
	s.finish(status, nil, false)
}

// Timeout ends the segment and every open descendant with the FAULT status,
// flagged as timed out.
func (s *Segment) Timeout() {
	if s == nil {
		return
	}
	s.finish(StatusFault, &ErrorInfo{Message: "invocation timed out", Type: "Timeout"}, true)
}

func (s *Segment) finish(status Status, info *ErrorInfo, timedOut bool) {
	t := s.tr.tracer

	s.tr.mu.Lock()
	if s.state == StateClosed {
		s.tr.mu.Unlock()
		s.warn("segment already closed, ignoring close")
		return
	}
	s.closeLocked(t.now(), status, info, timedOut)

	var root *SegmentData
	if s.parent == nil {
		root = s.snapshotLocked()
	}
	s.tr.mu.Unlock()

	if root != nil {
		t.export(root)
	}
}

// closeLocked closes open children first, newest first, so that closing
// order stays the reverse of opening order even when a parent is closed
// early.
func (s *Segment) closeLocked(now time.Time, status Status, info *ErrorInfo, timedOut bool) {
	for i := len(s.children) - 1; i >= 0; i-- {
		child := s.children[i]
		if child.state == StateOpen {
			child.closeLocked(now, StatusFault, &ErrorInfo{
				Message: "segment still open when " + s.name + " closed",
				Type:    "Unclosed",
			}, timedOut)
		}
	}

	if info != nil {
		s.err = info
	}
	if status > s.status {
		s.status = status
	}
	s.timedOut = s.timedOut || timedOut
	s.end = now
	s.state = StateClosed
	s.closeSeq = s.tr.next()
}

func (s *Segment) mutate(what string, fn func()) {
	s.tr.mu.Lock()
	if s.state == StateClosed {
		s.tr.mu.Unlock()
		s.warn("segment already closed, ignoring "+what)
		return
	}
	fn()
	s.tr.mu.Unlock()
}

func (s *Segment) warn(msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("segment", s.name))
	s.tr.tracer.diag.Warn(msg, fields...)
}

func (s *Segment) snapshotLocked() *SegmentData {
	d := &SegmentData{
		ID:        s.id,
		TraceID:   s.tr.traceID,
		Sampled:   s.tr.sampled,
		Name:      s.name,
		Namespace: s.namespace,
		Start:     s.start,
		End:       s.end,
		Status:    s.status,
		TimedOut:  s.timedOut,
		Input:     s.input,
		Output:    s.output,
		Error:     s.err,
	}
	if s.parent != nil {
		d.ParentID = s.parent.id
	} else {
		d.ParentID = s.tr.parentID
	}
	if len(s.annotations) > 0 {
		d.Annotations = make(map[string]any, len(s.annotations))
		for k, v := range s.annotations {
			d.Annotations[k] = v
		}
	}
	if len(s.metadata) > 0 {
		d.Metadata = make(map[string]map[string]any, len(s.metadata))
		for ns, values := range s.metadata {
			cp := make(map[string]any, len(values))
			for k, v := range values {
				cp[k] = v
			}
			d.Metadata[ns] = cp
		}
	}
	for _, c := range s.children {
		d.Children = append(d.Children, c.snapshotLocked())
	}
	return d
}

func errorInfo(err error) *ErrorInfo {
	return &ErrorInfo{Message: err.Error(), Type: fmt.Sprintf("%T", err)}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
