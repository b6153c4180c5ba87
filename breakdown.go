package ttrace

import (
	"sort"
	"time"
)

// RemainderName is the name of the breakdown entry that aggregates every
// segment name beyond the requested limit.
const RemainderName = "Remainder"

// BreakdownEntry summarizes all segments of a sample with the same name.
type BreakdownEntry struct {
	Name      string        `json:"name"`
	Calls     int           `json:"calls"`
	Exclusive time.Duration `json:"exclusive"`
	Total     time.Duration `json:"total"`
}

// Breakdown groups the segments of a finished sample by name, and returns one
// entry per name, ordered by exclusive time, most expensive first. The root
// segment is excluded. If there are more than limit names, the first limit-1
// entries are returned as-is, and the rest are folded into a single entry
// named RemainderName. A limit less than 1 means no limit.
//
// Total is the sum of the durations of the segments, and so counts recursive
// calls more than once.
func Breakdown(s *Sample, limit int) []BreakdownEntry {
	index := map[string]int{}
	var entries []BreakdownEntry
	for _, child := range s.root.children {
		child.Walk(func(seg *Segment, _ int) error {
			i, ok := index[seg.name]
			if !ok {
				i = len(entries)
				index[seg.name] = i
				entries = append(entries, BreakdownEntry{Name: seg.name})
			}
			entries[i].Calls++
			entries[i].Exclusive += seg.ExclusiveDuration()
			entries[i].Total += seg.Duration()
			return nil
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Exclusive > entries[j].Exclusive
	})

	if limit < 1 || len(entries) <= limit {
		return entries
	}

	remainder := BreakdownEntry{Name: RemainderName}
	for _, e := range entries[limit-1:] {
		remainder.Calls += e.Calls
		remainder.Exclusive += e.Exclusive
		remainder.Total += e.Total
	}
	return append(entries[:limit-1], remainder)
}
