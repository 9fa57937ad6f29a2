// Package s3 archives closed segment trees as JSON objects, one object per
// tree, for traces that must outlive the tracing backend's retention.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"powertools/infrastructure/observability/adapters/breaker"
	"powertools/internal/async"
	"powertools/tracer"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// DefaultPrefix is the key prefix of archived trees.
const DefaultPrefix = "traces"

// ErrQueueFull is returned when a tree is dropped because the upload queue
// is full.
var ErrQueueFull = errors.New("s3: upload queue full")

// API is the part of the S3 client the archive uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type object struct {
	key  string
	body []byte
}

// Archive uploads trees in the background.
type Archive struct {
	client  API
	bucket  string
	prefix  string
	breaker *breaker.Breaker
	batcher *async.Batcher[object]
	diag    *zap.Logger
}

// Option configures an Archive.
type Option func(*Archive, *async.Options)

// WithDiagnostics sets the logger for upload failures.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(a *Archive, _ *async.Options) {
		if diag != nil {
			a.diag = diag
		}
	}
}

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(a *Archive, _ *async.Options) { a.prefix = prefix }
}

// WithBreaker guards every upload with b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(a *Archive, _ *async.Options) { a.breaker = b }
}

// WithBatchOptions tunes the upload queue.
func WithBatchOptions(batch async.Options) Option {
	return func(_ *Archive, o *async.Options) { *o = batch }
}

// NewArchive creates an archive writing to bucket.
func NewArchive(client API, bucket string, opts ...Option) *Archive {
	a := &Archive{client: client, bucket: bucket, prefix: DefaultPrefix, diag: zap.NewNop()}
	var batch async.Options
	for _, opt := range opts {
		opt(a, &batch)
	}
	if a.breaker == nil {
		a.breaker = breaker.New(breaker.DefaultConfig("s3"), a.diag)
	}
	if batch.MaxBatch <= 0 {
		// One object per send keeps Failures exact.
		batch.MaxBatch = 1
	}
	batch.OnError = func(err error, lost int) {
		a.diag.Warn("s3 upload failed", zap.String("bucket", bucket), zap.Int("lost", lost), zap.Error(err))
	}
	a.batcher = async.New(batch, a.send)
	return a
}

// Key returns the object key of root:
// <prefix>/YYYY/MM/DD/<trace id>/<segment id>.json, dated by the start
// time in UTC. Trees without a trace id are filed under "untraced".
func (a *Archive) Key(root *tracer.SegmentData) string {
	traceID := root.TraceID
	if traceID == "" {
		traceID = "untraced"
	}
	return path.Join(a.prefix, root.Start.UTC().Format("2006/01/02"), traceID, root.ID+".json")
}

// Export queues root for upload.
func (a *Archive) Export(_ context.Context, root *tracer.SegmentData) error {
	body, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("s3: encode segment %s: %w", root.ID, err)
	}
	if !a.batcher.Enqueue(object{key: a.Key(root), body: body}) {
		return ErrQueueFull
	}
	return nil
}

// Flush uploads the queued trees.
func (a *Archive) Flush(ctx context.Context) error {
	return a.batcher.Flush(ctx)
}

// Close uploads the queued trees and stops the archive.
func (a *Archive) Close(ctx context.Context) error {
	return a.batcher.Close(ctx)
}

// Dropped returns the number of trees rejected by a full queue.
func (a *Archive) Dropped() int64 { return a.batcher.Dropped() }

// Failures returns the number of trees lost to failed uploads.
func (a *Archive) Failures() int64 { return a.batcher.Failed() }

func (a *Archive) send(ctx context.Context, objects []object) error {
	var errs []error
	for _, obj := range objects {
		err := a.breaker.Do(ctx, func(ctx context.Context) error {
			_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(a.bucket),
				Key:         aws.String(obj.key),
				Body:        bytes.NewReader(obj.body),
				ContentType: aws.String("application/json"),
			})
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("put %s: %w", obj.key, err))
		}
	}
	return errors.Join(errs...)
}
