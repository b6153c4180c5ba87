package ttsampler

import (
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttconfig"
)

// Tracer is the API used by instrumentation. Every method is safe to call
// whether or not tracing is active for the state, and never panics due to the
// absence of an active trace.
type Tracer interface {
	OnStartTransaction(st *State, t time.Time, uri string)
	PushFrame(st *State, name string, t time.Time) *ttrace.Segment
	PopFrame(st *State, seg *ttrace.Segment, t time.Time) error
	SetTransactionName(st *State, name string)
	OnFinishingTransaction(st *State, txn Transaction, t time.Time) *ttrace.Sample
	IgnoreTransaction(st *State)
	NoticeTransactionCPUTime(st *State, d time.Duration)
	NoticeQuery(st *State, sql string, config ttrace.DriverConfig, duration time.Duration, explainer ttrace.Explainer)
	NoticeKeyValueLookup(st *State, key string, duration time.Duration)
	NoticeStatement(st *State, statement string, duration time.Duration)
	SetSegmentParameters(st *State, params map[string]any)
}

var (
	_ Tracer = (*Sampler)(nil)
	_ Tracer = Disabled{}
)

// NewTracer returns the sampler if tracing or developer mode is enabled by the
// settings, and Disabled otherwise. The choice is made once, so it's meant to
// be called when the process is configured.
func NewTracer(settings Settings, s *Sampler) Tracer {
	if s == nil || !(settings.Bool(ttconfig.KeyTracerEnabled) || settings.Bool(ttconfig.KeyDeveloperMode)) {
		return Disabled{}
	}
	return s
}

// Disabled is a tracer that does nothing.
type Disabled struct{}

// OnStartTransaction implements Tracer.
func (Disabled) OnStartTransaction(*State, time.Time, string) {}

// PushFrame implements Tracer.
func (Disabled) PushFrame(*State, string, time.Time) *ttrace.Segment { return nil }

// PopFrame implements Tracer.
func (Disabled) PopFrame(*State, *ttrace.Segment, time.Time) error { return nil }

// SetTransactionName implements Tracer.
func (Disabled) SetTransactionName(*State, string) {}

// OnFinishingTransaction implements Tracer.
func (Disabled) OnFinishingTransaction(*State, Transaction, time.Time) *ttrace.Sample { return nil }

// IgnoreTransaction implements Tracer.
func (Disabled) IgnoreTransaction(*State) {}

// NoticeTransactionCPUTime implements Tracer.
func (Disabled) NoticeTransactionCPUTime(*State, time.Duration) {}

// NoticeQuery implements Tracer.
func (Disabled) NoticeQuery(*State, string, ttrace.DriverConfig, time.Duration, ttrace.Explainer) {}

// NoticeKeyValueLookup implements Tracer.
func (Disabled) NoticeKeyValueLookup(*State, string, time.Duration) {}

// NoticeStatement implements Tracer.
func (Disabled) NoticeStatement(*State, string, time.Duration) {}

// SetSegmentParameters implements Tracer.
func (Disabled) SetSegmentParameters(*State, map[string]any) {}
