package ttsampler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttsampler"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mtx     sync.Mutex
	fail    error
	batches [][]*ttrace.Prepared
}

func (s *recordingSink) Send(ctx context.Context, batch []*ttrace.Prepared) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) setFail(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.fail = err
}

func (s *recordingSink) count() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var n int
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestHarvesterConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sink := &recordingSink{}

	if _, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{Sink: sink}); err == nil {
		t.Errorf("missing sampler: want error, have none")
	}
	if _, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{Sampler: f.sampler}); err == nil {
		t.Errorf("missing sink: want error, have none")
	}
	if _, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{Sampler: f.sampler, Sink: sink, Interval: time.Nanosecond}); err != nil {
		t.Errorf("short interval: %v", err)
	}
}

func TestHarvesterSinkFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sink := &recordingSink{fail: errors.New("collector unavailable")}
	h, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{
		Sampler: f.sampler,
		Sink:    sink,
		Logger:  zaptest.NewLogger(t),
	})
	AssertNoError(t, err)

	ctx := context.Background()

	// Empty harvests never reach the sink.
	AssertNoError(t, h.HarvestOnce(ctx))

	f.run(t, &testTxn{name: "forced", force: true}, 100)
	f.run(t, &testTxn{name: "slow"}, 900)

	if err := h.HarvestOnce(ctx); err == nil {
		t.Fatalf("want error, have none")
	}
	ExpectEqual(t, 1.0, f.counter(t, "ttrace_sink_failures_total"))
	ExpectEqual(t, 2, f.sampler.Count())

	sink.setFail(nil)
	AssertNoError(t, h.HarvestOnce(ctx))
	ExpectEqual(t, 2, sink.count())
	ExpectEqual(t, 0, f.sampler.Count())
}

func TestHarvesterRun(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) }) // after the sampler is closed

	f := newFixture(t, nil)
	sink := &recordingSink{}
	h, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{
		Sampler:  f.sampler,
		Sink:     sink,
		Interval: 100 * time.Millisecond,
		Logger:   zaptest.NewLogger(t),
	})
	AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	f.run(t, &testTxn{name: "first", force: true}, 10)
	waitFor(t, time.Second, func() bool { return sink.count() == 1 })

	// The final harvest picks up anything stored after the last tick.
	f.run(t, &testTxn{name: "second", force: true}, 10)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("want %v, have %v", context.Canceled, err)
	}
	ExpectEqual(t, 2, sink.count())
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()

	var calls int
	sink := ttsampler.SinkFunc(func(ctx context.Context, batch []*ttrace.Prepared) error {
		calls++
		return nil
	})
	AssertNoError(t, sink.Send(context.Background(), nil))
	ExpectEqual(t, 1, calls)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met after %s", timeout)
}
