package ttconfig_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ttrace/ttconfig"
)

func TestRegistryDefaults(t *testing.T) {
	t.Parallel()

	r := ttconfig.NewRegistry(map[string]any{ttconfig.KeyDeveloperMode: true})

	if want, have := true, r.Bool(ttconfig.KeyTracerEnabled); want != have {
		t.Errorf("%s: want %v, have %v", ttconfig.KeyTracerEnabled, want, have)
	}
	if want, have := true, r.Bool(ttconfig.KeyDeveloperMode); want != have {
		t.Errorf("%s: want %v, have %v", ttconfig.KeyDeveloperMode, want, have)
	}
	if want, have := 2*time.Second, r.Duration(ttconfig.KeyTransactionThreshold); want != have {
		t.Errorf("%s: want %v, have %v", ttconfig.KeyTransactionThreshold, want, have)
	}
	if want, have := "obfuscated", r.String(ttconfig.KeyRecordSQL); want != have {
		t.Errorf("%s: want %q, have %q", ttconfig.KeyRecordSQL, want, have)
	}
	if want, have := 100, r.Int(ttconfig.KeyDeveloperModeLimit); want != have {
		t.Errorf("%s: want %d, have %d", ttconfig.KeyDeveloperModeLimit, want, have)
	}
	if want, have := len(ttconfig.Defaults()), len(r.Keys()); want != have {
		t.Errorf("keys: want %d, have %d", want, have)
	}
}

func TestRegistryOnChange(t *testing.T) {
	t.Parallel()

	r := ttconfig.NewRegistry(nil)

	var changes []ttconfig.Change
	unsubscribe, err := r.OnChange(ttconfig.KeyRecordSQL, func(c ttconfig.Change) {
		changes = append(changes, c)
	})
	if err != nil {
		t.Fatal(err)
	}

	r.Set(ttconfig.KeyRecordSQL, "raw")
	r.Set(ttconfig.KeyTracerEnabled, false) // different key
	r.Set(ttconfig.KeyRecordSQL, "off")
	unsubscribe()
	r.Set(ttconfig.KeyRecordSQL, "obfuscated")

	want := []ttconfig.Change{
		{Key: ttconfig.KeyRecordSQL, Previous: "obfuscated", Current: "raw"},
		{Key: ttconfig.KeyRecordSQL, Previous: "raw", Current: "off"},
	}
	if !cmp.Equal(want, changes) {
		t.Error(cmp.Diff(want, changes))
	}
	if want, have := false, r.Bool(ttconfig.KeyTracerEnabled); want != have {
		t.Errorf("want %v, have %v", want, have)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input any
		want  time.Duration
		err   bool
	}{
		{250 * time.Millisecond, 250 * time.Millisecond, false},
		{2, 2 * time.Second, false},
		{0.5, 500 * time.Millisecond, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"750ms", 750 * time.Millisecond, false},
		{"soon", 0, true},
		{true, 0, true},
	} {
		have, err := ttconfig.ParseDuration(tc.input)
		if want, have := tc.err, err != nil; want != have {
			t.Errorf("%v: want error %v, have %v", tc.input, want, err)
		}
		if want, have := tc.want, have; want != have {
			t.Errorf("%v: want %v, have %v", tc.input, want, have)
		}
	}
}
