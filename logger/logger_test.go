package logger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"powertools/invocation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger(t *testing.T, cfg Config, opts ...Option) (*Logger, *MemorySink) {
	t.Helper()
	if cfg.Service == "" {
		cfg.Service = "payments"
	}
	if cfg.SampleLevel == 0 {
		cfg.SampleLevel = DebugLevel
	}
	sink := NewMemorySink()
	l, err := New(cfg, sink, opts...)
	require.NoError(t, err)
	return l, sink
}

func testInvocation(id string) *invocation.Invocation {
	return &invocation.Invocation{
		ID:              id,
		ColdStart:       true,
		FunctionName:    "hello",
		FunctionVersion: "$LATEST",
		FunctionARN:     "arn:aws:lambda:us-east-1:123456789012:function:hello",
		MemoryLimitMB:   512,
		TraceID:         "1-5759e988-bd862e3fe1be46a994272793",
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"TRACE", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"Error", ErrorLevel, false},
		{"FATAL", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{SamplingRate: 1.5}, NewMemorySink())
	assert.Error(t, err)

	_, err = New(Config{CorrelationIDPath: "requestContext"}, NewMemorySink())
	assert.Error(t, err)

	l, err := New(Config{}, NewMemorySink())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxEventBytes, l.Config().MaxEventBytes)
}

func TestScope_RecordFields(t *testing.T) {
	l, sink := newTestLogger(t, Config{SamplingRate: 0.1})
	l.AppendPersistent("region", "us-east-1")

	_, s := l.OpenScope(context.Background(), testInvocation("req-1"), nil)
	s.Append("order_id", "o-42")
	s.Info("charged card", zap.Int("amount", 1200), zap.String("order_id", "override"))

	records := sink.Records()
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, InfoLevel, rec.Level)
	assert.Equal(t, "charged card", rec.Message)
	assert.Equal(t, "payments", rec.Fields[FieldService])
	assert.Equal(t, "req-1", rec.Fields[FieldFunctionRequestID])
	assert.Equal(t, true, rec.Fields[FieldColdStart])
	assert.Equal(t, "hello", rec.Fields[FieldFunctionName])
	assert.Equal(t, "$LATEST", rec.Fields[FieldFunctionVersion])
	assert.Equal(t, 512, rec.Fields[FieldFunctionMemorySize])
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", rec.Fields[FieldXRayTraceID])
	assert.Equal(t, 0.1, rec.Fields[FieldSamplingRate])
	assert.Equal(t, "us-east-1", rec.Fields["region"])
	assert.Equal(t, int64(1200), rec.Fields["amount"])
	// one-off fields win over scope keys
	assert.Equal(t, "override", rec.Fields["order_id"])
}

func TestScope_KeysDoNotLeakAcrossInvocations(t *testing.T) {
	l, sink := newTestLogger(t, Config{})

	_, a := l.OpenScope(context.Background(), testInvocation("a"), nil)
	a.Append("order_id", "o-1")
	a.AppendPersistent("tenant", "acme")
	a.Info("first")
	a.Close()

	_, b := l.OpenScope(context.Background(), testInvocation("b"), nil)
	b.Info("second")
	b.Close()

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "o-1", records[0].Fields["order_id"])
	assert.NotContains(t, records[1].Fields, "order_id")
	assert.Equal(t, "acme", records[1].Fields["tenant"])
	assert.Equal(t, map[string]string{"tenant": "acme"}, b.Keys())
}

func TestScope_Remove(t *testing.T) {
	l, _ := newTestLogger(t, Config{})
	_, s := l.OpenScope(context.Background(), testInvocation("a"), nil)

	s.Append("a", "1")
	s.Append("b", "2")
	s.AppendPersistent("c", "3")
	s.Remove("a")
	s.Remove("c")

	assert.Equal(t, map[string]string{"b": "2"}, s.Keys())
}

func TestScope_Sampling(t *testing.T) {
	tests := []struct {
		name      string
		sampled   bool
		logEvent  bool
		wantDebug bool
		wantEvent bool
	}{
		{"not sampled", false, false, false, false},
		{"sampled forces debug and event", true, false, true, true},
		{"log event without sampling", false, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, sink := newTestLogger(t, Config{Level: InfoLevel, LogEvent: tt.logEvent, SamplingRate: 0.5})
			inv := testInvocation("req")
			inv.Sampled = tt.sampled

			_, s := l.OpenScope(context.Background(), inv, json.RawMessage(`{"id":1}`))
			s.Debug("details")

			var sawDebug, sawEvent bool
			for _, rec := range sink.Records() {
				if rec.Message == "details" {
					sawDebug = true
				}
				if ev, ok := rec.Fields[FieldEvent]; ok {
					sawEvent = true
					assert.Equal(t, json.RawMessage(`{"id":1}`), ev)
				}
			}
			assert.Equal(t, tt.wantDebug, sawDebug)
			assert.Equal(t, tt.wantEvent, sawEvent)
		})
	}
}

func TestScope_EventTruncated(t *testing.T) {
	l, sink := newTestLogger(t, Config{LogEvent: true, MaxEventBytes: 16})
	payload := json.RawMessage(`{"data":"` + strings.Repeat("x", 100) + `"}`)

	l.OpenScope(context.Background(), testInvocation("req"), payload)

	records := sink.Records()
	require.Len(t, records, 1)
	event, ok := records[0].Fields[FieldEvent].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(event, truncationMarker))
	assert.Len(t, event, 16+len(truncationMarker))
	assert.Equal(t, true, records[0].Fields[FieldEventTruncated])
	assert.Equal(t, int64(len(payload)), records[0].Fields[FieldEventSize])
}

func TestScope_EventTruncatedOnCharacterBoundary(t *testing.T) {
	l, sink := newTestLogger(t, Config{LogEvent: true, MaxEventBytes: 4})

	l.OpenScope(context.Background(), testInvocation("req"), json.RawMessage(`"éé"`))

	records := sink.Records()
	require.Len(t, records, 1)
	event, ok := records[0].Fields[FieldEvent].(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(event), "event %q", event)
	assert.Equal(t, `"é`+truncationMarker, event)
}

func TestScope_InvalidJSONEventLoggedAsText(t *testing.T) {
	l, sink := newTestLogger(t, Config{LogEvent: true})

	l.OpenScope(context.Background(), testInvocation("req"), json.RawMessage(`not json`))

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "not json", records[0].Fields[FieldEvent])
}

func TestScope_CorrelationID(t *testing.T) {
	l, sink := newTestLogger(t, Config{CorrelationIDPath: CorrelationAPIGatewayREST})
	payload := json.RawMessage(`{"requestContext":{"requestId":"c-77"}}`)

	ctx, _ := l.OpenScope(context.Background(), testInvocation("req"), payload)
	FromContext(ctx).Info("hello")

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "c-77", records[0].Fields[FieldCorrelationID])
}

func TestLogger_SinkFailuresAreSwallowed(t *testing.T) {
	calls := 0
	sink := SinkFunc(func(Record) error {
		calls++
		if calls == 1 {
			return errors.New("pipe closed")
		}
		panic("sink exploded")
	})
	l, err := New(Config{}, sink)
	require.NoError(t, err)

	_, s := l.OpenScope(context.Background(), testInvocation("req"), nil)
	assert.NotPanics(t, func() {
		s.Info("one")
		s.Info("two")
	})
	assert.Equal(t, int64(2), l.Failures())
}

func TestScope_ClosedScopeWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l, sink := newTestLogger(t, Config{}, WithDiagnostics(zap.New(core)))

	_, s := l.OpenScope(context.Background(), testInvocation("req"), nil)
	s.Append("k", "v")
	s.Close()
	s.Close()
	s.Append("late", "x")
	s.Info("after close")

	assert.True(t, s.Closed())
	assert.Equal(t, 1, logs.FilterMessageSnippet("already closed").Len())
	records := sink.Records()
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].Fields, "k")
	assert.NotContains(t, records[0].Fields, "late")
}

func TestScope_NilIsSafe(t *testing.T) {
	var s *Scope
	assert.NotPanics(t, func() {
		s.Append("k", "v")
		s.Info("nothing")
		s.Close()
		s.Zap().Info("nothing")
	})
	assert.Nil(t, FromContext(context.Background()))
	assert.Empty(t, s.Keys())
}
