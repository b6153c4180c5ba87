package ttrace

import (
	"time"

	"github.com/oklog/ulid/v2"
)

var sampleIDEntropy = ulid.DefaultEntropy()

// Sample is a transaction trace: a tree of segments plus metadata about the
// transaction that produced it. A sample is built by exactly one builder, and
// is immutable once the builder is finished. Finished samples are shared by
// reference, and are safe for concurrent reads.
type Sample struct {
	id                   ulid.ULID
	root                 *Segment
	start                time.Time
	duration             time.Duration
	name                 string
	uri                  string
	requestParams        map[string]any
	customParams         map[string]any
	guid                 string
	syntheticsResourceID string
	xraySessionID        uint64
	forcePersist         bool
	cpuTime              time.Duration
	segmentCount         int
	forceClosed          int
	truncated            int
	finished             bool
	ignored              bool
}

func newSample(start time.Time) *Sample {
	return &Sample{
		id:    ulid.MustNew(ulid.Timestamp(start), sampleIDEntropy),
		root:  &Segment{name: RootSegmentName, entry: start},
		start: start,
	}
}

// ID returns a unique identifier for the sample, assigned at start.
func (s *Sample) ID() string { return s.id.String() }

// Root returns the synthetic root segment. Its children are the outermost
// segments entered by instrumentation.
func (s *Sample) Root() *Segment { return s.root }

// Start returns the time the trace was started.
func (s *Sample) Start() time.Time { return s.start }

// Duration returns the total duration of the trace, or zero if the sample isn't
// finished.
func (s *Sample) Duration() time.Duration { return s.duration }

// Name returns the transaction name.
func (s *Sample) Name() string { return s.name }

// URI returns the request URI, if one was provided.
func (s *Sample) URI() string { return s.uri }

// RequestParams returns the filtered request parameters. Callers must not
// modify the returned map.
func (s *Sample) RequestParams() map[string]any { return s.requestParams }

// CustomParams returns the custom parameters, including cross-cutting metadata
// stamped by the sampler. Callers must not modify the returned map.
func (s *Sample) CustomParams() map[string]any { return s.customParams }

// GUID returns the globally unique identifier of the transaction.
func (s *Sample) GUID() string { return s.guid }

// SyntheticsResourceID returns the synthetics resource ID, which is non-empty
// only for samples of synthetic monitoring requests.
func (s *Sample) SyntheticsResourceID() string { return s.syntheticsResourceID }

// XraySessionID returns the ID of the xray session that requested this trace,
// or zero.
func (s *Sample) XraySessionID() uint64 { return s.xraySessionID }

// ForcePersist returns true if the transaction explicitly requested that its
// trace be kept.
func (s *Sample) ForcePersist() bool { return s.forcePersist }

// CPUTime returns the CPU time consumed by the transaction, if it was noticed.
func (s *Sample) CPUTime() time.Duration { return s.cpuTime }

// SegmentCount returns the number of segments entered, excluding the root.
func (s *Sample) SegmentCount() int { return s.segmentCount }

// ForceClosed returns the number of segments that were closed defensively,
// because an enclosing segment was exited or the trace was finished first.
func (s *Sample) ForceClosed() int { return s.forceClosed }

// Truncated returns the number of segments that weren't recorded because the
// segment limit was reached.
func (s *Sample) Truncated() int { return s.truncated }

// Finished returns true once the builder has been finished.
func (s *Sample) Finished() bool { return s.finished }

// Ignored returns true if the transaction was marked as ignored.
func (s *Sample) Ignored() bool { return s.ignored }
