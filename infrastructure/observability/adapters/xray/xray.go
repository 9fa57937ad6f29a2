// Package xray sends closed segment trees to AWS X-Ray as segment
// documents through the PutTraceSegments API.
package xray

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"powertools/infrastructure/observability/adapters/breaker"
	"powertools/internal/async"
	"powertools/tracer"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"go.uber.org/zap"
)

// maxDocumentsPerCall is the PutTraceSegments limit on documents per
// request.
const maxDocumentsPerCall = 50

// ErrQueueFull is returned when a document is dropped because the send
// queue is full.
var ErrQueueFull = errors.New("xray: send queue full")

// API is the part of the X-Ray client the exporter uses.
type API interface {
	PutTraceSegments(ctx context.Context, in *xray.PutTraceSegmentsInput, optFns ...func(*xray.Options)) (*xray.PutTraceSegmentsOutput, error)
}

// Document is an X-Ray segment document.
type Document struct {
	Name        string                    `json:"name"`
	ID          string                    `json:"id"`
	TraceID     string                    `json:"trace_id,omitempty"`
	ParentID    string                    `json:"parent_id,omitempty"`
	Type        string                    `json:"type,omitempty"`
	StartTime   float64                   `json:"start_time"`
	EndTime     float64                   `json:"end_time"`
	Error       bool                      `json:"error,omitempty"`
	Fault       bool                      `json:"fault,omitempty"`
	Cause       *Cause                    `json:"cause,omitempty"`
	Annotations map[string]any            `json:"annotations,omitempty"`
	Metadata    map[string]map[string]any `json:"metadata,omitempty"`
	Subsegments []*Document               `json:"subsegments,omitempty"`
}

// Cause describes the failure of a segment.
type Cause struct {
	Exceptions []Exception `json:"exceptions"`
}

// Exception is one recorded error.
type Exception struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// NewDocument converts a closed tree into a segment document. A root that
// continues an incoming trace becomes an independent subsegment of the
// caller's segment, the way the Lambda facade segment is extended.
func NewDocument(root *tracer.SegmentData) *Document {
	doc := convert(root)
	doc.TraceID = root.TraceID
	if root.ParentID != "" {
		doc.ParentID = root.ParentID
		doc.Type = "subsegment"
	}
	return doc
}

func convert(seg *tracer.SegmentData) *Document {
	doc := &Document{
		Name:        sanitizeName(seg.Name),
		ID:          seg.ID,
		StartTime:   float64(seg.Start.UnixNano()) / 1e9,
		EndTime:     float64(seg.End.UnixNano()) / 1e9,
		Annotations: seg.Annotations,
		Metadata:    seg.Metadata,
	}

	switch seg.Status {
	case tracer.StatusError:
		doc.Error = true
	case tracer.StatusFault:
		doc.Fault = true
	}
	if seg.Error != nil {
		doc.Cause = &Cause{Exceptions: []Exception{{
			ID:      seg.ID,
			Message: seg.Error.Message,
			Type:    seg.Error.Type,
		}}}
	}

	for _, child := range seg.Children {
		doc.Subsegments = append(doc.Subsegments, convert(child))
	}
	return doc
}

// sanitizeName keeps the characters X-Ray accepts in segment names and
// caps the length at 200.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(" _.:/%&#=+\\-@", r):
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 200 {
		out = out[:200]
	}
	return out
}

// Exporter queues documents and sends them in the background.
type Exporter struct {
	client  API
	breaker *breaker.Breaker
	batcher *async.Batcher[string]
	diag    *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter, *async.Options)

// WithDiagnostics sets the logger for send failures.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(e *Exporter, _ *async.Options) {
		if diag != nil {
			e.diag = diag
		}
	}
}

// WithBreaker guards every API call with b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(e *Exporter, _ *async.Options) { e.breaker = b }
}

// WithBatchOptions tunes the send queue.
func WithBatchOptions(batch async.Options) Option {
	return func(_ *Exporter, o *async.Options) { *o = batch }
}

// NewExporter creates an exporter calling client.
func NewExporter(client API, opts ...Option) *Exporter {
	e := &Exporter{client: client, diag: zap.NewNop()}
	var batch async.Options
	for _, opt := range opts {
		opt(e, &batch)
	}
	if e.breaker == nil {
		e.breaker = breaker.New(breaker.DefaultConfig("xray"), e.diag)
	}
	if batch.MaxBatch <= 0 || batch.MaxBatch > maxDocumentsPerCall {
		batch.MaxBatch = maxDocumentsPerCall
	}
	batch.OnError = func(err error, lost int) {
		e.diag.Warn("xray send failed", zap.Int("lost", lost), zap.Error(err))
	}
	e.batcher = async.New(batch, e.send)
	return e
}

// Export queues root. Trees of traces the caller did not sample are
// skipped.
func (e *Exporter) Export(_ context.Context, root *tracer.SegmentData) error {
	if !root.Sampled {
		return nil
	}
	doc, err := json.Marshal(NewDocument(root))
	if err != nil {
		return fmt.Errorf("xray: encode segment %s: %w", root.ID, err)
	}
	if !e.batcher.Enqueue(string(doc)) {
		return ErrQueueFull
	}
	return nil
}

// Flush sends the queued documents.
func (e *Exporter) Flush(ctx context.Context) error {
	return e.batcher.Flush(ctx)
}

// Close sends the queued documents and stops the exporter.
func (e *Exporter) Close(ctx context.Context) error {
	return e.batcher.Close(ctx)
}

// Dropped returns the number of documents rejected by a full queue.
func (e *Exporter) Dropped() int64 { return e.batcher.Dropped() }

// Failures returns the number of documents lost to failed calls.
func (e *Exporter) Failures() int64 { return e.batcher.Failed() }

func (e *Exporter) send(ctx context.Context, docs []string) error {
	payload := append([]string(nil), docs...)
	return e.breaker.Do(ctx, func(ctx context.Context) error {
		out, err := e.client.PutTraceSegments(ctx, &xray.PutTraceSegmentsInput{
			TraceSegmentDocuments: payload,
		})
		if err != nil {
			return err
		}
		if n := len(out.UnprocessedTraceSegments); n > 0 {
			first := out.UnprocessedTraceSegments[0]
			return fmt.Errorf("xray: %d segments unprocessed, first %s: %s",
				n, aws.ToString(first.Id), aws.ToString(first.Message))
		}
		return nil
	})
}
