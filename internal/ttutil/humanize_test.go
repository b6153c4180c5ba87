package ttutil_test

import (
	"testing"
	"time"

	"github.com/peterbourgon/ttrace/internal/ttutil"
)

func TestHumanizeDuration(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input time.Duration
		want  string
	}{
		{0, "0s"},
		{999 * time.Nanosecond, "999ns"},
		{1234567 * time.Nanosecond, "1.2ms"},
		{12345678 * time.Nanosecond, "12ms"},
		{1234567890 * time.Nanosecond, "1.2s"},
		{61*time.Second + 500*time.Millisecond, "1m1s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h3m"},
	} {
		if want, have := tc.want, ttutil.HumanizeDuration(tc.input); want != have {
			t.Errorf("%v: want %q, have %q", tc.input, want, have)
		}
	}
}

func TestHumanizeBytes(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input int
		want  string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1536, "1.5KB"},
		{200 * 1024, "200KB"},
		{3 * 1024 * 1024, "3.0MB"},
	} {
		if want, have := tc.want, ttutil.HumanizeBytes(tc.input); want != have {
			t.Errorf("%d: want %q, have %q", tc.input, want, have)
		}
	}
}

func TestAtomicSwap(t *testing.T) {
	t.Parallel()

	a := ttutil.NewAtomic("one")
	if want, have := "one", a.Swap("two"); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
	if want, have := "two", a.Get(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}
