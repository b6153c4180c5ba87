package ttbuffer

import (
	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/internal/ttringbuf"
)

// DefaultDetailCapacity is the default number of samples kept by a detail
// buffer.
const DefaultDetailCapacity = 100

// Detail keeps the most recent samples regardless of duration, for an
// always-on diagnostic view. It's typically enabled only in developer mode,
// where it also captures a backtrace for every entered segment.
type Detail struct {
	enabled Predicate
	samples *ttringbuf.RingBuffer[*ttrace.Sample]
}

var (
	_ Buffer         = (*Detail)(nil)
	_ SegmentVisitor = (*Detail)(nil)
)

// NewDetail returns an empty detail buffer with the given capacity. A
// non-positive capacity means DefaultDetailCapacity.
func NewDetail(capacity int, enabled Predicate) *Detail {
	if capacity <= 0 {
		capacity = DefaultDetailCapacity
	}
	return &Detail{
		enabled: enabled,
		samples: ttringbuf.NewRingBuffer[*ttrace.Sample](capacity),
	}
}

// Enabled implements Buffer.
func (b *Detail) Enabled() bool { return b.enabled.eval() }

// Store keeps s, evicting the oldest sample if the buffer is full.
func (b *Detail) Store(s *ttrace.Sample) {
	if !b.Enabled() {
		return
	}
	b.samples.Add(s)
}

// StorePrevious implements Buffer.
func (b *Detail) StorePrevious(samples []*ttrace.Sample) { storeEach(b, samples) }

// HarvestSamples implements Buffer. Samples are returned oldest first.
func (b *Detail) HarvestSamples() []*ttrace.Sample {
	return nonEmpty(b.samples.Drain())
}

// Samples implements Buffer. Samples are returned oldest first.
func (b *Detail) Samples() []*ttrace.Sample {
	return nonEmpty(b.samples.Snapshot())
}

// Reset implements Buffer.
func (b *Detail) Reset() { b.samples.Reset() }

// Capacity returns the maximum number of samples kept by the buffer.
func (b *Detail) Capacity() int { return b.samples.Cap() }

// Resize changes the capacity of the buffer, and returns any samples that were
// evicted as a result.
func (b *Detail) Resize(capacity int) []*ttrace.Sample {
	return b.samples.Resize(capacity)
}

// VisitSegment captures a backtrace for every segment entered while the buffer
// is enabled.
func (b *Detail) VisitSegment(bld *ttrace.Builder, seg *ttrace.Segment) {
	if !b.Enabled() {
		return
	}
	bld.AttachBacktrace(seg)
}

func nonEmpty(samples []*ttrace.Sample) []*ttrace.Sample {
	if len(samples) == 0 {
		return nil
	}
	return samples
}
