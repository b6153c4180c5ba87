package ttrace_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/peterbourgon/ttrace"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	t.Run("short", func(t *testing.T) {
		s := strings.Repeat("a", ttrace.MaxDataLength)
		ExpectEqual(t, s, ttrace.Truncate(s))
	})

	t.Run("long", func(t *testing.T) {
		s := strings.Repeat("a", 20000)
		have := ttrace.Truncate(s)
		ExpectEqual(t, 16384, len(have))
		ExpectEqual(t, strings.Repeat("a", 16380), have[:16380])
		ExpectEqual(t, ttrace.TruncationMarker, have[16380:])
	})

	t.Run("multibyte", func(t *testing.T) {
		s := "x" + strings.Repeat("é", 10000) // 2 bytes each, odd offset
		have := ttrace.Truncate(s)
		if !utf8.ValidString(have) {
			t.Errorf("truncated string isn't valid UTF-8")
		}
		if len(have) > ttrace.MaxDataLength {
			t.Errorf("len %d > %d", len(have), ttrace.MaxDataLength)
		}
		if !strings.HasSuffix(have, ttrace.TruncationMarker) {
			t.Errorf("missing marker")
		}
	})
}
