package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"powertools/handler"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// SourceLambda marks requests delivered by the Lambda runtime.
const SourceLambda = "lambda"

// LambdaAdapter adapts a handler to the AWS Lambda runtime. Every event is
// one invocation; SQS batches can instead be split into one invocation per
// record with partial batch failure reporting.
type LambdaAdapter struct {
	handler *handler.Handler
	config  *LambdaConfig
}

// LambdaConfig contains Lambda-specific configuration
type LambdaConfig struct {
	// SplitSQSBatches runs each record of an SQS event as its own
	// invocation and reports failed records as batch item failures.
	SplitSQSBatches bool
	// AutoBase64Decode handles base64 encoded SQS message bodies
	AutoBase64Decode bool
}

// NewLambdaAdapter creates a new Lambda adapter
func NewLambdaAdapter(h *handler.Handler, config *LambdaConfig) *LambdaAdapter {
	if config == nil {
		config = DefaultLambdaConfig()
	}
	return &LambdaAdapter{
		handler: h,
		config:  config,
	}
}

// DefaultLambdaConfig returns default Lambda configuration
func DefaultLambdaConfig() *LambdaConfig {
	return &LambdaConfig{}
}

// Start begins the Lambda runtime handler. It does not return.
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// HandleEvent is the function registered with the runtime. The response
// and the error of the worker are returned to the runtime unchanged.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (any, error) {
	if a.config.SplitSQSBatches {
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(event, &sqsEvent); err == nil && isSQSEvent(sqsEvent) {
			return a.handleSQSEvent(ctx, sqsEvent)
		}
	}

	return a.handler.Handle(ctx, handler.Request{
		Source:    SourceLambda,
		Payload:   event,
		Timestamp: time.Now().UTC(),
	})
}

func isSQSEvent(event events.SQSEvent) bool {
	return len(event.Records) > 0 && event.Records[0].EventSource == "aws:sqs"
}

// handleSQSEvent processes SQS events one record at a time.
func (a *LambdaAdapter) handleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		request, err := a.buildRequestFromSQS(record)
		if err == nil {
			_, err = a.handler.Handle(ctx, request)
		}
		if err != nil {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

// buildRequestFromSQS converts SQS message to handler.Request
func (a *LambdaAdapter) buildRequestFromSQS(record events.SQSMessage) (handler.Request, error) {
	metadata := make(map[string]string)
	for key, attr := range record.MessageAttributes {
		if attr.StringValue != nil {
			metadata[key] = *attr.StringValue
		}
	}
	metadata["sqs_message_id"] = record.MessageId
	metadata["sqs_event_source_arn"] = record.EventSourceARN

	body := []byte(record.Body)
	if a.config.AutoBase64Decode {
		if decoded, ok := decodeBase64(record.Body); ok {
			body = decoded
		}
	}

	var payload json.RawMessage
	if json.Valid(body) {
		payload = body
	} else {
		// Non-JSON bodies are passed as a JSON string.
		wrapped, err := json.Marshal(string(body))
		if err != nil {
			return handler.Request{}, fmt.Errorf("wrap sqs body: %w", err)
		}
		payload = wrapped
	}

	return handler.Request{
		ID:        record.MessageId,
		Source:    "sqs",
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}, nil
}

// decodeBase64 reports whether body is standard base64 and decodes it.
func decodeBase64(body string) ([]byte, bool) {
	if body == "" || len(body)%4 != 0 {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
