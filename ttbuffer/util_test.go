package ttbuffer_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ttrace"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type sampleOption func(*ttrace.Builder)

func withName(name string) sampleOption {
	return func(b *ttrace.Builder) { b.SetTransactionName(name) }
}

func withForcePersist() sampleOption {
	return func(b *ttrace.Builder) { b.SetForcePersist(true) }
}

func withSynthetics(id string) sampleOption {
	return func(b *ttrace.Builder) { b.SetSyntheticsResourceID(id) }
}

func withXraySession(id uint64) sampleOption {
	return func(b *ttrace.Builder) { b.SetXraySessionID(id) }
}

// newSample returns a finished sample with the given duration in seconds.
func newSample(t *testing.T, seconds int, opts ...sampleOption) *ttrace.Sample {
	t.Helper()
	b := ttrace.NewBuilder(t0)
	for _, opt := range opts {
		opt(b)
	}
	s, err := b.Finish(t0.Add(time.Duration(seconds)*time.Second), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func durations(samples []*ttrace.Sample) []time.Duration {
	res := []time.Duration{}
	for _, s := range samples {
		res = append(res, s.Duration())
	}
	return res
}

func assertSamples(t *testing.T, want, have []*ttrace.Sample) {
	t.Helper()
	ids := func(samples []*ttrace.Sample) []string {
		res := []string{}
		for _, s := range samples {
			res = append(res, s.ID())
		}
		return res
	}
	if w, h := ids(want), ids(have); !cmp.Equal(w, h) {
		t.Fatal(cmp.Diff(w, h))
	}
}
