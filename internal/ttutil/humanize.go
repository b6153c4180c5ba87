package ttutil

import (
	"fmt"
	"strings"
	"time"
)

// HumanizeDuration truncates d to a precision appropriate to its magnitude, and
// returns its string form. Durations over a second keep 100ms precision,
// durations over a minute keep 1s precision, and so on.
func HumanizeDuration(d time.Duration) string {
	var precision time.Duration
	switch {
	case d >= time.Hour:
		precision = time.Minute
	case d >= time.Minute:
		precision = time.Second
	case d >= time.Second:
		precision = 100 * time.Millisecond
	case d >= 10*time.Millisecond:
		precision = time.Millisecond
	case d >= time.Millisecond:
		precision = 100 * time.Microsecond
	case d >= time.Microsecond:
		precision = time.Microsecond
	default:
		return d.String()
	}

	s := d.Truncate(precision).String()
	if d >= time.Hour {
		s = strings.TrimSuffix(s, "0s")
	}
	return s
}

// HumanizeBytes returns a short representation of n bytes, using KB for 1024
// bytes and MB for 1048576 bytes.
func HumanizeBytes[T ~int | ~int64 | ~uint64](n T) string {
	const (
		kib = 1024.0
		mib = 1024.0 * kib
	)
	f := float64(n)
	switch {
	case f < kib:
		return fmt.Sprintf("%.0fB", f)
	case f < 100*kib:
		return fmt.Sprintf("%.1fKB", f/kib)
	case f < mib:
		return fmt.Sprintf("%.0fKB", f/kib)
	default:
		return fmt.Sprintf("%.1fMB", f/mib)
	}
}
