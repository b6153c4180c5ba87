package ttrace

import (
	"sort"
	"time"
)

// RootSegmentName is the name of the synthetic root segment of every sample.
const RootSegmentName = "ROOT"

// Segment is a single timed node in a trace. Segments are created and mutated
// only by the builder that owns them. Once the parent sample is finished, a
// segment is immutable, and safe for concurrent reads.
type Segment struct {
	name        string
	entry       time.Time
	exit        time.Time
	closed      bool
	annotations map[string]Annotation
	children    []*Segment
	parent      *Segment
}

// Name returns the name given to the segment when it was entered.
func (seg *Segment) Name() string { return seg.name }

// Entry returns the time the segment was entered.
func (seg *Segment) Entry() time.Time { return seg.entry }

// Exit returns the time the segment was exited, or the zero time if it's still
// open.
func (seg *Segment) Exit() time.Time { return seg.exit }

// Closed returns true once the segment has been exited or force-closed.
func (seg *Segment) Closed() bool { return seg.closed }

// Parent returns the enclosing segment, or nil for the root.
func (seg *Segment) Parent() *Segment { return seg.parent }

// Children returns the child segments in entry order. Callers must not modify
// the returned slice.
func (seg *Segment) Children() []*Segment { return seg.children }

// Duration returns the time between entry and exit, or zero if the segment is
// still open.
func (seg *Segment) Duration() time.Duration {
	if !seg.closed {
		return 0
	}
	return seg.exit.Sub(seg.entry)
}

// ExclusiveDuration returns the duration of the segment minus the durations of
// its direct children, floored at zero.
func (seg *Segment) ExclusiveDuration() time.Duration {
	d := seg.Duration()
	for _, child := range seg.children {
		d -= child.Duration()
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Annotation returns the annotation with the given key, if it exists.
func (seg *Segment) Annotation(key string) (Annotation, bool) {
	a, ok := seg.annotations[key]
	return a, ok
}

// AnnotationKeys returns the keys of all annotations, sorted.
func (seg *Segment) AnnotationKeys() []string {
	keys := make([]string, 0, len(seg.annotations))
	for k := range seg.annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Walk calls fn for the segment and all of its descendants, depth first, in
// entry order. The segment itself has depth 0. If fn returns an error, the walk
// stops and returns that error.
func (seg *Segment) Walk(fn func(seg *Segment, depth int) error) error {
	return seg.walk(fn, 0)
}

func (seg *Segment) walk(fn func(*Segment, int) error, depth int) error {
	if err := fn(seg, depth); err != nil {
		return err
	}
	for _, child := range seg.children {
		if err := child.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (seg *Segment) set(key string, a Annotation) {
	if seg.annotations == nil {
		seg.annotations = map[string]Annotation{}
	}
	seg.annotations[key] = a
}

// close exits the segment at t, adjusted so that the exit is never before the
// entry, or before the exit of any child.
func (seg *Segment) close(t time.Time) {
	if t.Before(seg.entry) {
		t = seg.entry
	}
	for _, child := range seg.children {
		if t.Before(child.exit) {
			t = child.exit
		}
	}
	seg.exit = t
	seg.closed = true
}
