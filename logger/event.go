package logger

import (
	"encoding/json"
	"unicode/utf8"

	"go.uber.org/zap"
)

// truncationMarker ends the text of a payload that was cut to fit.
const truncationMarker = "...[truncated]"

// logEvent writes the invocation payload as a single field. Payloads larger
// than MaxEventBytes are cut and flagged instead of failing the invocation.
func (s *Scope) logEvent(payload json.RawMessage) {
	limit := s.logger.cfg.MaxEventBytes

	switch {
	case len(payload) == 0:
		s.Info("Incoming event", zap.Reflect(FieldEvent, nil))
	case len(payload) > limit:
		// Cut on a character boundary so the event stays valid UTF-8.
		for limit > 0 && !utf8.RuneStart(payload[limit]) {
			limit--
		}
		s.Info("Incoming event",
			zap.String(FieldEvent, string(payload[:limit])+truncationMarker),
			zap.Bool(FieldEventTruncated, true),
			zap.Int(FieldEventSize, len(payload)),
		)
	case json.Valid(payload):
		s.Info("Incoming event", zap.Reflect(FieldEvent, payload))
	default:
		s.Info("Incoming event", zap.String(FieldEvent, string(payload)))
	}
}
