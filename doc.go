// Package ttrace captures transaction traces: trees of nested, timed segments
// describing a single unit of work, typically a request, in a program.
//
// Each unit of work gets its own [Builder], which is owned by exactly one
// goroutine and needs no locking. Instrumentation enters and exits segments as
// the work proceeds, and may annotate the current segment with queries, lookup
// keys, backtraces, or arbitrary parameters. When the work is complete, the
// builder is finished into a [Sample], which is immutable from that point on,
// and can be shared freely between goroutines.
//
// Mismatched enter/exit pairs, which are common when errors unwind through
// instrumented code, are not fatal. Exiting a segment that isn't at the top of
// the stack force-closes every segment above it at the same time. The number
// of force-closed segments is recorded in the sample.
//
// Finished samples are normally handed to the retention buffers in package
// [github.com/peterbourgon/ttrace/ttbuffer] by the orchestrator in package
// [github.com/peterbourgon/ttrace/ttsampler], which most applications should
// use rather than building traces directly.
package ttrace
