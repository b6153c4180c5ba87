package ttbuffer

import (
	"github.com/peterbourgon/ttrace"
)

// ForcePersist keeps every sample whose transaction asked to be kept. It's
// unbounded within a harvest window.
type ForcePersist struct {
	enabled Predicate
	samples []*ttrace.Sample
}

var _ Buffer = (*ForcePersist)(nil)

// NewForcePersist returns an empty force-persist buffer.
func NewForcePersist(enabled Predicate) *ForcePersist {
	return &ForcePersist{enabled: enabled}
}

// Enabled implements Buffer.
func (b *ForcePersist) Enabled() bool { return b.enabled.eval() }

// Store keeps s if it's marked force-persist.
func (b *ForcePersist) Store(s *ttrace.Sample) {
	if !b.Enabled() || !s.ForcePersist() {
		return
	}
	b.samples = append(b.samples, s)
}

// StorePrevious implements Buffer.
func (b *ForcePersist) StorePrevious(samples []*ttrace.Sample) { storeEach(b, samples) }

// HarvestSamples implements Buffer.
func (b *ForcePersist) HarvestSamples() []*ttrace.Sample {
	samples := b.samples
	b.samples = nil
	return samples
}

// Samples implements Buffer.
func (b *ForcePersist) Samples() []*ttrace.Sample {
	return append([]*ttrace.Sample(nil), b.samples...)
}

// Reset implements Buffer.
func (b *ForcePersist) Reset() { b.samples = nil }
