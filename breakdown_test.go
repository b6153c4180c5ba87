package ttrace_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/ttrace"
)

func TestBreakdown(t *testing.T) {
	t.Parallel()

	b := ttrace.NewBuilder(at(0))
	ctrl := b.EnterSegment("Controller", at(0))
	for i := 0; i < 3; i++ {
		db := b.EnterSegment("Database", at(10+20*i))
		AssertNoError(t, b.ExitSegment(db, at(20+20*i)))
	}
	view := b.EnterSegment("View", at(70))
	partial := b.EnterSegment("View/partial", at(71))
	AssertNoError(t, b.ExitSegment(partial, at(72)))
	AssertNoError(t, b.ExitSegment(view, at(90)))
	AssertNoError(t, b.ExitSegment(ctrl, at(100)))
	s, err := b.Finish(at(100), nil)
	AssertNoError(t, err)

	ms := time.Millisecond

	for _, tc := range []struct {
		name  string
		limit int
		want  []ttrace.BreakdownEntry
	}{
		{
			name:  "no limit",
			limit: 0,
			want: []ttrace.BreakdownEntry{
				{Name: "Controller", Calls: 1, Exclusive: 50 * ms, Total: 100 * ms},
				{Name: "Database", Calls: 3, Exclusive: 30 * ms, Total: 30 * ms},
				{Name: "View", Calls: 1, Exclusive: 19 * ms, Total: 20 * ms},
				{Name: "View/partial", Calls: 1, Exclusive: 1 * ms, Total: 1 * ms},
			},
		},
		{
			name:  "limit 2",
			limit: 2,
			want: []ttrace.BreakdownEntry{
				{Name: "Controller", Calls: 1, Exclusive: 50 * ms, Total: 100 * ms},
				{Name: ttrace.RemainderName, Calls: 5, Exclusive: 50 * ms, Total: 51 * ms},
			},
		},
		{
			name:  "limit equals names",
			limit: 4,
			want: []ttrace.BreakdownEntry{
				{Name: "Controller", Calls: 1, Exclusive: 50 * ms, Total: 100 * ms},
				{Name: "Database", Calls: 3, Exclusive: 30 * ms, Total: 30 * ms},
				{Name: "View", Calls: 1, Exclusive: 19 * ms, Total: 20 * ms},
				{Name: "View/partial", Calls: 1, Exclusive: 1 * ms, Total: 1 * ms},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if have := ttrace.Breakdown(s, tc.limit); !cmp.Equal(tc.want, have) {
				t.Error(cmp.Diff(tc.want, have))
			}
		})
	}
}
