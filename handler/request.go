package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is one invocation event as delivered by a platform adapter.
// It provides a platform-agnostic view of Lambda events and local HTTP
// invocations.
type Request struct {
	// ID identifies the request. Adapters that receive no runtime request
	// id leave it empty and the invocation gets a generated one.
	ID string `json:"id,omitempty"`

	// Source identifies the adapter that delivered the event (lambda, http).
	Source string `json:"source"`

	// Payload is the raw event.
	Payload json.RawMessage `json:"payload"`

	// Metadata carries transport details such as HTTP headers.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp when the request was received
	Timestamp time.Time `json:"timestamp"`
}

// NewRequest marshals payload into a Request with a generated ID.
func NewRequest(source string, payload any) (Request, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Request{}, err
	}

	return Request{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Unmarshal is a helper to unmarshal request payload into a specific type.
func (r *Request) Unmarshal(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// SetMetadata adds or updates metadata on the request.
func (r *Request) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// GetMetadata retrieves metadata from the request.
func (r *Request) GetMetadata(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	val, ok := r.Metadata[key]
	return val, ok
}
