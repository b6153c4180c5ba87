package ttsampler

import (
	"context"
	"time"

	"github.com/peterbourgon/ttrace"
)

// State is the per-execution-context tracing state. Each goroutine doing
// traced work owns exactly one state, and passes it explicitly to every
// sampler call. The zero value is a traced context with no active builder.
type State struct {
	// TransactionUntraced disables tracing for the whole transaction.
	TransactionUntraced bool

	// ExecutionUntraced disables tracing for the current stretch of
	// execution, e.g. inside the tracer's own code.
	ExecutionUntraced bool

	// SQLUntraced disables recording of queries, regardless of settings.
	SQLUntraced bool

	// CrossApp is set when the transaction is part of a cross-application
	// request.
	CrossApp *CrossApp

	// Synthetics is set when the transaction was made by a synthetic monitor.
	Synthetics *Synthetics

	builder *ttrace.Builder
}

// CrossApp identifies a request that spans multiple applications.
type CrossApp struct {
	TripID   string
	PathHash string
}

// Synthetics identifies a request made by a synthetic monitor.
type Synthetics struct {
	ResourceID string
	JobID      string
	MonitorID  string
}

// Traced returns true if both the transaction and the current execution are
// traced.
func (st *State) Traced() bool {
	return !st.TransactionUntraced && !st.ExecutionUntraced
}

// Builder returns the active builder, or nil.
func (st *State) Builder() *ttrace.Builder {
	if st == nil {
		return nil
	}
	return st.builder
}

// SetBuilder replaces the active builder. A nil builder clears it.
func (st *State) SetBuilder(b *ttrace.Builder) {
	st.builder = b
}

type stateKey struct{}

// NewContext returns a context carrying the state.
func NewContext(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// FromContext returns the state carried by the context, if any.
func FromContext(ctx context.Context) (*State, bool) {
	st, ok := ctx.Value(stateKey{}).(*State)
	return st, ok && st != nil
}

// Transaction is the unit of work a trace describes. It's supplied by the
// caller when the trace is finished.
type Transaction interface {
	// BestName is the final display name of the transaction.
	BestName() string

	// FilteredParams are the request parameters, already filtered of
	// sensitive values.
	FilteredParams() map[string]any

	// CustomParams are the user-supplied attributes of the transaction.
	CustomParams() map[string]any

	// GUID uniquely identifies the transaction.
	GUID() string

	// ForcePersist returns true if the trace must be kept.
	ForcePersist() bool

	// GCTime returns the time spent in garbage collection during the
	// transaction, if it's known.
	GCTime() (time.Duration, bool)
}
