package ttrace

import "unicode/utf8"

const (
	// MaxDataLength is the maximum length in bytes of any text captured in a
	// segment annotation, including the truncation marker.
	MaxDataLength = 16384

	// TruncationMarker is appended to text that was truncated.
	TruncationMarker = " ..."
)

// Truncate returns s unchanged if it fits in MaxDataLength bytes. Otherwise, it
// returns the longest prefix of s that fits alongside the TruncationMarker,
// followed by the marker. The prefix never ends in a partial UTF-8 sequence.
func Truncate(s string) string {
	if len(s) <= MaxDataLength {
		return s
	}

	keep := MaxDataLength - len(TruncationMarker)
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}

	return s[:keep] + TruncationMarker
}
