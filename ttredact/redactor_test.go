package ttredact_test

import (
	"strings"
	"testing"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttredact"
	"go.uber.org/zap/zaptest"
)

func newRedactor(t *testing.T, entries int) *ttredact.Redactor {
	t.Helper()
	r, err := ttredact.NewRedactor(ttredact.Config{CacheEntries: entries, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input   string
		want    ttredact.Mode
		wantErr bool
	}{
		{"obfuscated", ttredact.ModeObfuscated, false},
		{"RAW", ttredact.ModeRaw, false},
		{" off ", ttredact.ModeOff, false},
		{"none", ttredact.ModeOff, false},
		{"bogus", ttredact.ModeObfuscated, true},
	} {
		have, err := ttredact.ParseMode(tc.input)
		if want, have := tc.wantErr, err != nil; want != have {
			t.Errorf("%q: want error %v, have %v", tc.input, want, err)
		}
		if want, have := tc.want, have; want != have {
			t.Errorf("%q: want %s, have %s", tc.input, want, have)
		}
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	for _, entries := range []int{-1, 0} {
		r := newRedactor(t, entries)
		query := "SELECT * FROM users WHERE password='secret' AND id = 42"

		if _, ok := r.Redact(query, ttredact.ModeOff); ok {
			t.Errorf("off: query was recorded")
		}

		raw, ok := r.Redact(query, ttredact.ModeRaw)
		if !ok || raw != query {
			t.Errorf("raw: want %q, have %q (%v)", query, raw, ok)
		}

		for i := 0; i < 3; i++ {
			obf, ok := r.Redact(query, ttredact.ModeObfuscated)
			if !ok {
				t.Fatalf("obfuscated: query wasn't recorded")
			}
			if strings.Contains(obf, "secret") || strings.Contains(obf, "42") {
				t.Errorf("obfuscated: literals remain in %q", obf)
			}
			if !strings.Contains(obf, "?") {
				t.Errorf("obfuscated: no placeholders in %q", obf)
			}
		}
	}
}

func TestRedactTruncates(t *testing.T) {
	t.Parallel()

	r := newRedactor(t, 0)
	query := "SELECT " + strings.Repeat("a", 20000)

	raw, _ := r.Redact(query, ttredact.ModeRaw)
	if want, have := ttrace.MaxDataLength, len(raw); want != have {
		t.Errorf("raw: want len %d, have %d", want, have)
	}
	if !strings.HasSuffix(raw, ttrace.TruncationMarker) {
		t.Errorf("raw: missing truncation marker")
	}

	captured := r.Capture(strings.Repeat("x", 20000))
	if want, have := ttrace.MaxDataLength, len(captured); want != have {
		t.Errorf("capture: want len %d, have %d", want, have)
	}
}
