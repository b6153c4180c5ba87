// Package ttbuffer provides the retention policies that decide which finished
// samples are kept until the next harvest.
//
// Buffers aren't safe for concurrent use. The sampler that owns them
// serializes every call under a single lock.
package ttbuffer

import (
	"time"

	"github.com/peterbourgon/ttrace"
)

// Buffer is a single retention policy.
type Buffer interface {
	// Store offers a finished, non-ignored sample to the buffer, which decides
	// independently whether to keep it.
	Store(s *ttrace.Sample)

	// StorePrevious offers samples left over from a previous harvest, e.g.
	// because they couldn't be delivered. Each sample is treated as if it
	// were stored fresh.
	StorePrevious(samples []*ttrace.Sample)

	// HarvestSamples returns the retained samples and empties the buffer.
	HarvestSamples() []*ttrace.Sample

	// Samples returns the retained samples without modifying the buffer.
	Samples() []*ttrace.Sample

	// Reset empties the buffer.
	Reset()

	// Enabled reports whether the buffer currently accepts samples.
	Enabled() bool
}

// SegmentVisitor is implemented by buffers that observe segments as they're
// entered, before the sample is finished.
type SegmentVisitor interface {
	VisitSegment(b *ttrace.Builder, seg *ttrace.Segment)
}

// Predicate reports whether a buffer is enabled. Predicates are usually bound
// to settings, so they're evaluated on every store.
type Predicate func() bool

// Always is a predicate that's always true.
func Always() bool { return true }

func (p Predicate) eval() bool {
	if p == nil {
		return true
	}
	return p()
}

// Threshold returns a duration, usually bound to a setting.
type Threshold func() time.Duration

func (t Threshold) eval() time.Duration {
	if t == nil {
		return 0
	}
	return t()
}

// Limit returns a count, usually bound to a setting.
type Limit func() int

func storeEach(b Buffer, samples []*ttrace.Sample) {
	for _, s := range samples {
		if s == nil || s.Ignored() || !s.Finished() {
			continue
		}
		b.Store(s)
	}
}
