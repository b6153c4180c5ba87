package ttsampler_test

import (
	"testing"
	"time"

	"github.com/peterbourgon/ttrace/ttconfig"
	"github.com/peterbourgon/ttrace/ttsampler"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

type testTxn struct {
	name   string
	params map[string]any
	custom map[string]any
	guid   string
	force  bool
	gc     time.Duration
}

func (txn *testTxn) BestName() string               { return txn.name }
func (txn *testTxn) FilteredParams() map[string]any { return txn.params }
func (txn *testTxn) CustomParams() map[string]any   { return txn.custom }
func (txn *testTxn) GUID() string                   { return txn.guid }
func (txn *testTxn) ForcePersist() bool             { return txn.force }
func (txn *testTxn) GCTime() (time.Duration, bool)  { return txn.gc, txn.gc > 0 }

type fixture struct {
	settings *ttconfig.Registry
	registry *prometheus.Registry
	sampler  *ttsampler.Sampler
}

func newFixture(t *testing.T, overrides map[string]any) *fixture {
	t.Helper()

	if overrides == nil {
		overrides = map[string]any{}
	}
	if _, ok := overrides[ttconfig.KeyTransactionThreshold]; !ok {
		overrides[ttconfig.KeyTransactionThreshold] = time.Duration(0)
	}

	var (
		settings = ttconfig.NewRegistry(overrides)
		registry = prometheus.NewRegistry()
	)

	sampler, err := ttsampler.NewSampler(ttsampler.Config{
		Settings:   settings,
		Logger:     zaptest.NewLogger(t),
		Registerer: registry,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sampler.Close)

	return &fixture{
		settings: settings,
		registry: registry,
		sampler:  sampler,
	}
}

// run traces a transaction with a single segment of the given duration.
func (f *fixture) run(t *testing.T, txn *testTxn, ms int) *ttsampler.State {
	t.Helper()

	st := &ttsampler.State{}
	f.sampler.OnStartTransaction(st, at(0), "/"+txn.name)
	seg := f.sampler.PushFrame(st, "work", at(0))
	if err := f.sampler.PopFrame(st, seg, at(ms)); err != nil {
		t.Fatal(err)
	}
	f.sampler.OnFinishingTransaction(st, txn, at(ms))
	return st
}

func (f *fixture) counter(t *testing.T, name string) float64 {
	t.Helper()

	mfs, err := f.registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func ExpectEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Errorf("want %v, have %v", want, have)
	}
}

func AssertEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Fatalf("want %v, have %v", want, have)
	}
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
