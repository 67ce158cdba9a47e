package testutil

import (
	"regexp"
	"strings"
)

var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[^\s",]*`)
	durationRe  = regexp.MustCompile(`\b\d+(\.\d+)?(ns|us|µs|ms|s|m|h)\b`)
	durationMS  = regexp.MustCompile(`("duration_ms":\s*|duration_ms:\s*)\d+`)
	uuidRe      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// Normalize converts line endings to LF and trims trailing whitespace from
// every line and the end of s.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ScrubTimestamps replaces RFC 3339 timestamps.
func ScrubTimestamps(s string) string {
	return timestampRe.ReplaceAllString(s, "[TIMESTAMP]")
}

// ScrubDurations replaces Go durations and duration_ms values.
func ScrubDurations(s string) string {
	s = durationMS.ReplaceAllString(s, "${1}[MS]")
	return durationRe.ReplaceAllString(s, "[DURATION]")
}

// ScrubUUIDs replaces run ids.
func ScrubUUIDs(s string) string {
	return uuidRe.ReplaceAllString(s, "[UUID]")
}

// ScrubAll applies every scrubber and normalizes the result.
func ScrubAll(s string) string {
	s = ScrubTimestamps(s)
	s = ScrubUUIDs(s)
	s = ScrubDurations(s)
	return Normalize(s)
}
