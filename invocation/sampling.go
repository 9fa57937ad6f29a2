package invocation

import "math/rand/v2"

// Source draws uniform values in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// GlobalSource is the goroutine-safe default random source.
var GlobalSource Source = globalSource{}

// Sample makes the per-invocation sampling decision with one draw from src.
// A rate of 0 never samples and a rate of 1 always does.
func Sample(rate float64, src Source) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	if src == nil {
		src = GlobalSource
	}
	return src.Float64() < rate
}
