package tracer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newSegmentID returns a 64-bit identifier as 16 hex digits.
func newSegmentID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// newTraceID returns an X-Ray trace id: version, epoch seconds and 96 random
// bits.
func newTraceID(now time.Time) string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("1-%08x-%s", now.Unix(), hex.EncodeToString(b[:]))
}
