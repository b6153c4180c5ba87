package ttrace_test

import (
	"testing"
	"time"

	"github.com/peterbourgon/ttrace"
)

func AssertEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Fatalf("want %v, have %v", want, have)
	}
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("error %v", err)
	}
}

func ExpectEqual[X comparable](t *testing.T, want, have X) {
	t.Helper()
	if want != have {
		t.Errorf("want %v, have %v", want, have)
	}
}

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

// checkTree verifies the structural invariants of every segment in the sample.
func checkTree(t *testing.T, s *ttrace.Sample) {
	t.Helper()
	s.Root().Walk(func(seg *ttrace.Segment, depth int) error {
		if !seg.Closed() {
			t.Errorf("%s: not closed", seg.Name())
		}
		if seg.Exit().Before(seg.Entry()) {
			t.Errorf("%s: exit %v before entry %v", seg.Name(), seg.Exit(), seg.Entry())
		}
		var prev time.Time
		for _, child := range seg.Children() {
			if child.Parent() != seg {
				t.Errorf("%s: child %s has wrong parent", seg.Name(), child.Name())
			}
			if child.Entry().Before(seg.Entry()) {
				t.Errorf("%s: child %s entered before parent", seg.Name(), child.Name())
			}
			if child.Exit().After(seg.Exit()) {
				t.Errorf("%s: child %s exited after parent", seg.Name(), child.Name())
			}
			if child.Entry().Before(prev) {
				t.Errorf("%s: child %s entered before previous sibling", seg.Name(), child.Name())
			}
			prev = child.Entry()
		}
		return nil
	})
}
