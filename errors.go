package ttrace

import "errors"

var (
	// ErrAlreadyFinished is returned by Finish when the builder has already
	// been finished. It always indicates a trace lifecycle bug in the caller.
	ErrAlreadyFinished = errors.New("trace already finished")

	// ErrFinished is returned by operations that would modify a builder whose
	// sample has been finished.
	ErrFinished = errors.New("trace is finished")

	// ErrSegmentNotOpen is returned by ExitSegment when the given segment is
	// not on the stack of open segments, e.g. because it was already exited.
	ErrSegmentNotOpen = errors.New("segment is not open")

	// ErrNotFinished is returned by Prepare for a sample that hasn't been
	// finished yet.
	ErrNotFinished = errors.New("trace is not finished")
)
