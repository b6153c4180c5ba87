package ttbuffer

import (
	"github.com/peterbourgon/ttrace"
)

// Slowest keeps the single longest sample at or over a duration threshold.
type Slowest struct {
	enabled   Predicate
	threshold Threshold
	slowest   *ttrace.Sample
}

var _ Buffer = (*Slowest)(nil)

// NewSlowest returns an empty slowest-sample buffer. Nil funcs mean always
// enabled and a threshold of zero.
func NewSlowest(enabled Predicate, threshold Threshold) *Slowest {
	return &Slowest{
		enabled:   enabled,
		threshold: threshold,
	}
}

// Enabled implements Buffer.
func (b *Slowest) Enabled() bool { return b.enabled.eval() }

// Store keeps s if it's at least as long as the threshold, and strictly longer
// than the currently kept sample.
func (b *Slowest) Store(s *ttrace.Sample) {
	if !b.Enabled() {
		return
	}
	if s.Duration() < b.threshold.eval() {
		return
	}
	if b.slowest == nil || s.Duration() > b.slowest.Duration() {
		b.slowest = s
	}
}

// StorePrevious implements Buffer.
func (b *Slowest) StorePrevious(samples []*ttrace.Sample) { storeEach(b, samples) }

// HarvestSamples implements Buffer.
func (b *Slowest) HarvestSamples() []*ttrace.Sample {
	samples := b.Samples()
	b.slowest = nil
	return samples
}

// Samples implements Buffer.
func (b *Slowest) Samples() []*ttrace.Sample {
	if b.slowest == nil {
		return nil
	}
	return []*ttrace.Sample{b.slowest}
}

// Reset implements Buffer.
func (b *Slowest) Reset() { b.slowest = nil }
