package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"powertools/infrastructure/observability/adapters/breaker"
	"powertools/infrastructure/observability/adapters/stdout"
	"powertools/internal/async"
	"powertools/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/google/uuid"
)

// maxLogEventsPerCall is the PutLogEvents limit on events per request.
const maxLogEventsPerCall = 10000

// LogsAPI is the part of the CloudWatch Logs client the log sink uses.
type LogsAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LogSink sends log records to a CloudWatch Logs stream.
type LogSink struct {
	client  LogsAPI
	group   string
	stream  string
	breaker *breaker.Breaker
	batcher *async.Batcher[types.InputLogEvent]

	// ready is only touched by the batcher goroutine.
	ready bool
}

// NewLogStreamName returns a stream name unique to this process.
func NewLogStreamName(service string) string {
	return fmt.Sprintf("%s/%s/%s", time.Now().UTC().Format("2006/01/02"), service, uuid.New().String())
}

// NewLogSink creates a sink writing to group/stream. The group and stream
// are created on the first send when they do not exist.
func NewLogSink(client LogsAPI, group, stream string, opts ...Option) *LogSink {
	o := buildOptions("cloudwatch-logs", maxLogEventsPerCall, opts)
	s := &LogSink{
		client:  client,
		group:   group,
		stream:  stream,
		breaker: o.breaker,
	}
	s.batcher = async.New(o.batch, s.send)
	return s
}

// Write queues rec. It never blocks.
func (s *LogSink) Write(rec logger.Record) error {
	line, err := stdout.EncodeLog(rec)
	if err != nil {
		return err
	}
	if !s.batcher.Enqueue(types.InputLogEvent{
		Message:   aws.String(string(line)),
		Timestamp: aws.Int64(rec.Time.UnixMilli()),
	}) {
		return ErrQueueFull
	}
	return nil
}

// Flush sends the queued records.
func (s *LogSink) Flush(ctx context.Context) error {
	return s.batcher.Flush(ctx)
}

// Close sends the queued records and stops the sink.
func (s *LogSink) Close(ctx context.Context) error {
	return s.batcher.Close(ctx)
}

// Dropped returns the number of records rejected by a full queue.
func (s *LogSink) Dropped() int64 { return s.batcher.Dropped() }

// Failures returns the number of records lost to failed calls.
func (s *LogSink) Failures() int64 { return s.batcher.Failed() }

func (s *LogSink) send(ctx context.Context, batch []types.InputLogEvent) error {
	events := make([]types.InputLogEvent, len(batch))
	copy(events, batch)
	// PutLogEvents rejects batches that are not in chronological order.
	sort.SliceStable(events, func(i, j int) bool {
		return aws.ToInt64(events[i].Timestamp) < aws.ToInt64(events[j].Timestamp)
	})

	return s.breaker.Do(ctx, func(ctx context.Context) error {
		if err := s.ensureStream(ctx); err != nil {
			return err
		}
		_, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(s.group),
			LogStreamName: aws.String(s.stream),
			LogEvents:     events,
		})
		return err
	})
}

func (s *LogSink) ensureStream(ctx context.Context) error {
	if s.ready {
		return nil
	}

	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(s.group),
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("create log group %s: %w", s.group, err)
	}

	_, err = s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("create log stream %s: %w", s.stream, err)
	}

	s.ready = true
	return nil
}

func alreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}
