// Package transcript renders merged segments as a timestamped text block and
// recovers plain text from it for the analysis pipeline.
package transcript

import (
	"fmt"
	"strings"

	"meetbrief/types"
)

// Format renders one line per segment:
//
//	[HH:MM:SS --> HH:MM:SS] [speaker] text
//
// The speaker bracket appears only when includeSpeaker is set and the segment
// carries a label. Hours are omitted while the timestamp stays under an hour.
func Format(segments []types.MergedSegment, includeSpeaker bool) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		start := FormatTimestamp(seg.Start)
		end := FormatTimestamp(seg.End)
		if includeSpeaker && seg.Speaker != "" {
			lines = append(lines, fmt.Sprintf("[%s --> %s] [%s] %s", start, end, seg.Speaker, seg.Text))
		} else {
			lines = append(lines, fmt.Sprintf("[%s --> %s] %s", start, end, seg.Text))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS once hours are nonzero.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// ExtractPlainText strips the timestamp and speaker prefixes from a formatted
// transcript: everything up to and including the last "]" on each line goes,
// empty remainders are dropped.
func ExtractPlainText(formatted string) string {
	var parts []string
	for _, line := range strings.Split(formatted, "\n") {
		idx := strings.LastIndex(line, "]")
		if idx < 0 {
			continue
		}
		text := strings.TrimSpace(line[idx+1:])
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
