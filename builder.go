package ttrace

import (
	"time"
)

const (
	segmentLimitDefault = 4000
	segmentLimitMax     = 100000
)

// Builder incrementally constructs the segment tree of a single trace. A
// builder is owned by one goroutine, typically the one doing the work being
// traced, and isn't safe for concurrent use.
type Builder struct {
	sample   *Sample
	stack    []*Segment // stack[0] is always the root
	limit    int
	finished bool
}

// NewBuilder starts a new trace at the given time. The returned builder's
// current segment is the synthetic root of the sample.
func NewBuilder(start time.Time) *Builder {
	s := newSample(start)
	return &Builder{
		sample: s,
		stack:  []*Segment{s.root},
		limit:  segmentLimitDefault,
	}
}

// SetSegmentLimit sets the maximum number of segments the builder will record.
// Segments entered beyond the limit aren't recorded, and are counted as
// truncated. A limit of zero or less means the default of 4000, and the
// maximum is 100000.
func (b *Builder) SetSegmentLimit(n int) {
	switch {
	case n <= 0:
		n = segmentLimitDefault
	case n > segmentLimitMax:
		n = segmentLimitMax
	}
	b.limit = n
}

// Sample returns the sample being built. Until the builder is finished, the
// sample must not be shared with other goroutines.
func (b *Builder) Sample() *Sample { return b.sample }

// Finished returns true once Finish has succeeded.
func (b *Builder) Finished() bool { return b.finished }

// Ignored returns true if Ignore has been called.
func (b *Builder) Ignored() bool { return b.sample.ignored }

// Ignore marks the trace as ignored. Ignored samples must never be retained.
func (b *Builder) Ignore() { b.sample.ignored = true }

// CurrentSegment returns the innermost open segment, which is the root if no
// segments are open, or nil if the builder is finished.
func (b *Builder) CurrentSegment() *Segment {
	if b.finished {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// Depth returns the number of open segments, excluding the root.
func (b *Builder) Depth() int {
	if b.finished {
		return 0
	}
	return len(b.stack) - 1
}

// EnterSegment opens a new segment as a child of the current segment, and makes
// it the current segment. It returns nil if the builder is finished, or if the
// segment limit has been reached. A nil segment may be safely passed to the
// other methods of the builder, where it has no effect.
//
// The entry time is adjusted, if necessary, so that it's never earlier than
// the entry of the parent, or of the previous sibling.
func (b *Builder) EnterSegment(name string, t time.Time) *Segment {
	if b.finished {
		return nil
	}

	if b.sample.segmentCount >= b.limit {
		b.sample.truncated++
		return nil
	}

	parent := b.stack[len(b.stack)-1]
	if t.Before(parent.entry) {
		t = parent.entry
	}
	if n := len(parent.children); n > 0 && t.Before(parent.children[n-1].entry) {
		t = parent.children[n-1].entry
	}

	seg := &Segment{
		name:   name,
		entry:  t,
		parent: parent,
	}
	parent.children = append(parent.children, seg)
	b.stack = append(b.stack, seg)
	b.sample.segmentCount++

	return seg
}

// ExitSegment closes seg at time t, and makes its parent the current segment.
// If seg isn't the current segment, every open segment above it is
// force-closed at the same time. Exiting a nil segment does nothing.
//
// ExitSegment returns ErrFinished if the builder is finished, and
// ErrSegmentNotOpen if seg isn't open, e.g. because it was already exited.
func (b *Builder) ExitSegment(seg *Segment, t time.Time) error {
	if b.finished {
		return ErrFinished
	}

	if seg == nil {
		return nil
	}

	idx := -1
	for i := len(b.stack) - 1; i >= 1; i-- {
		if b.stack[i] == seg {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSegmentNotOpen
	}

	for i := len(b.stack) - 1; i > idx; i-- {
		b.stack[i].close(t)
		b.stack[i] = nil
		b.sample.forceClosed++
	}

	seg.close(t)
	b.stack[idx] = nil
	b.stack = b.stack[:idx]

	return nil
}

// Annotate sets a free-form text annotation on seg. Text longer than
// MaxDataLength is truncated. Annotating a nil segment, or any segment after
// the builder is finished, does nothing.
func (b *Builder) Annotate(seg *Segment, key, text string) {
	b.set(seg, key, TagAnnotation(text))
}

// AnnotateQuery records a database query on seg, under the KeySQL key.
func (b *Builder) AnnotateQuery(seg *Segment, q *Query) {
	if q == nil {
		return
	}
	qq := *q
	qq.SQL = Truncate(qq.SQL)
	b.set(seg, KeySQL, Annotation{Kind: KindQuery, Query: &qq})
}

// AnnotateKey records the key of a key-value store lookup on seg.
func (b *Builder) AnnotateKey(seg *Segment, key string) {
	b.set(seg, KeyKey, Annotation{Kind: KindKey, Text: Truncate(key)})
}

// AnnotateStatement records a non-SQL datastore statement on seg.
func (b *Builder) AnnotateStatement(seg *Segment, statement string) {
	b.set(seg, KeyStatement, Annotation{Kind: KindStatement, Text: Truncate(statement)})
}

// AnnotateParams sets one opaque annotation on seg for each parameter.
func (b *Builder) AnnotateParams(seg *Segment, params map[string]any) {
	for k, v := range params {
		b.set(seg, k, OpaqueAnnotation(v))
	}
}

// AttachBacktrace captures the current call stack and records it on seg.
func (b *Builder) AttachBacktrace(seg *Segment) {
	b.set(seg, KeyBacktrace, Annotation{Kind: KindBacktrace, Backtrace: CaptureBacktrace()})
}

// AttachBacktraceIfSlow calls AttachBacktrace only if duration is at least
// threshold, and reports whether it did so. Capturing a stack is relatively
// expensive, and only worthwhile for segments that already look slow.
func (b *Builder) AttachBacktraceIfSlow(seg *Segment, duration, threshold time.Duration) bool {
	if seg == nil || b.finished || duration < threshold {
		return false
	}
	b.AttachBacktrace(seg)
	return true
}

func (b *Builder) set(seg *Segment, key string, a Annotation) {
	if seg == nil || b.finished {
		return
	}
	seg.set(key, a)
}

//
//
//

// SetTransactionName sets the transaction name of the sample.
func (b *Builder) SetTransactionName(name string) {
	if !b.finished {
		b.sample.name = name
	}
}

// SetURI sets the request URI of the sample.
func (b *Builder) SetURI(uri string) {
	if !b.finished {
		b.sample.uri = Truncate(uri)
	}
}

// SetRequestParams sets the request parameters of the sample. The map is
// copied.
func (b *Builder) SetRequestParams(params map[string]any) {
	if !b.finished {
		b.sample.requestParams = copyParams(params)
	}
}

// SetGUID sets the globally unique identifier of the transaction.
func (b *Builder) SetGUID(guid string) {
	if !b.finished {
		b.sample.guid = guid
	}
}

// SetCustomParam sets a single custom parameter.
func (b *Builder) SetCustomParam(key string, value any) {
	if b.finished {
		return
	}
	if b.sample.customParams == nil {
		b.sample.customParams = map[string]any{}
	}
	b.sample.customParams[key] = value
}

// SetSyntheticsResourceID marks the sample as produced by a synthetic
// monitoring request.
func (b *Builder) SetSyntheticsResourceID(id string) {
	if !b.finished {
		b.sample.syntheticsResourceID = id
	}
}

// SetXraySessionID associates the sample with an xray session.
func (b *Builder) SetXraySessionID(id uint64) {
	if !b.finished {
		b.sample.xraySessionID = id
	}
}

// SetForcePersist marks the sample as one that must be kept.
func (b *Builder) SetForcePersist(force bool) {
	if !b.finished {
		b.sample.forcePersist = force
	}
}

// SetCPUTime records the CPU time used by the transaction.
func (b *Builder) SetCPUTime(d time.Duration) {
	if !b.finished {
		b.sample.cpuTime = d
	}
}

// Finish closes any open segments at time t, merges the custom parameters into
// the sample, and marks it finished. The returned sample is immutable.
//
// Finish returns ErrAlreadyFinished if it's called more than once, and leaves
// the sample unchanged.
func (b *Builder) Finish(t time.Time, customParams map[string]any) (*Sample, error) {
	if b.finished {
		return nil, ErrAlreadyFinished
	}

	for i := len(b.stack) - 1; i >= 1; i-- {
		b.stack[i].close(t)
		b.stack[i] = nil
		b.sample.forceClosed++
	}

	root := b.sample.root
	root.close(t)
	b.stack = nil

	if len(customParams) > 0 && b.sample.customParams == nil {
		b.sample.customParams = make(map[string]any, len(customParams))
	}
	for k, v := range customParams {
		if _, ok := b.sample.customParams[k]; !ok { // stamped values win
			b.sample.customParams[k] = v
		}
	}

	b.sample.duration = root.exit.Sub(root.entry)
	b.sample.finished = true
	b.finished = true

	return b.sample, nil
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return cp
}
