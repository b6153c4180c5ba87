package ttbuffer

import (
	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/internal/ttringbuf"
)

// DefaultSyntheticsCapacity is the default number of samples kept by a
// synthetics buffer.
const DefaultSyntheticsCapacity = 20

// Synthetics keeps the most recent samples produced by synthetic monitoring
// requests, isolating them from organic traffic.
type Synthetics struct {
	enabled Predicate
	samples *ttringbuf.RingBuffer[*ttrace.Sample]
}

var _ Buffer = (*Synthetics)(nil)

// NewSynthetics returns an empty synthetics buffer with the given capacity. A
// non-positive capacity means DefaultSyntheticsCapacity.
func NewSynthetics(capacity int, enabled Predicate) *Synthetics {
	if capacity <= 0 {
		capacity = DefaultSyntheticsCapacity
	}
	return &Synthetics{
		enabled: enabled,
		samples: ttringbuf.NewRingBuffer[*ttrace.Sample](capacity),
	}
}

// Enabled implements Buffer.
func (b *Synthetics) Enabled() bool { return b.enabled.eval() }

// Store keeps s if it has a synthetics resource ID, evicting the oldest sample
// if the buffer is full.
func (b *Synthetics) Store(s *ttrace.Sample) {
	if !b.Enabled() || s.SyntheticsResourceID() == "" {
		return
	}
	b.samples.Add(s)
}

// StorePrevious implements Buffer.
func (b *Synthetics) StorePrevious(samples []*ttrace.Sample) { storeEach(b, samples) }

// HarvestSamples implements Buffer.
func (b *Synthetics) HarvestSamples() []*ttrace.Sample { return nonEmpty(b.samples.Drain()) }

// Samples implements Buffer.
func (b *Synthetics) Samples() []*ttrace.Sample { return nonEmpty(b.samples.Snapshot()) }

// Reset implements Buffer.
func (b *Synthetics) Reset() { b.samples.Reset() }

// Resize changes the capacity of the buffer, and returns any samples that were
// evicted as a result.
func (b *Synthetics) Resize(capacity int) []*ttrace.Sample {
	return b.samples.Resize(capacity)
}
