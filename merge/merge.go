// Package merge combines transcript segments with speaker turns produced by two
// independently-timestamped models.
package merge

import "meetbrief/types"

// defaultSpeaker is assigned when nothing at all is known about the speakers.
const defaultSpeaker = "Speaker 1"

// Merge annotates every transcript segment with a speaker label. The output has
// exactly one entry per transcript segment, in the same order, with start/end/text
// copied through unchanged.
//
// Recognizer boundaries rarely line up with diarizer turn boundaries, so each
// segment goes to whichever speaker shares the most time with it in total.
// Ties go to the speaker that appears first in speakerSegments. A segment with
// no overlapping turn at all (silence or VAD gap) takes the speaker of the
// nearest turn by midpoint distance. With no speaker segments whatsoever, the
// last assigned speaker carries forward, starting from a placeholder.
func Merge(transcriptSegments []types.TranscriptSegment, speakerSegments []types.SpeakerSegment) []types.MergedSegment {
	merged := make([]types.MergedSegment, 0, len(transcriptSegments))
	lastKnown := ""

	for _, t := range transcriptSegments {
		speaker := bestOverlap(t, speakerSegments)
		if speaker == "" {
			speaker = nearest(t, speakerSegments)
		}
		if speaker == "" {
			speaker = lastKnown
		}
		if speaker == "" {
			speaker = defaultSpeaker
		}
		lastKnown = speaker

		merged = append(merged, types.MergedSegment{
			Start:   t.Start,
			End:     t.End,
			Text:    t.Text,
			Speaker: speaker,
		})
	}

	return merged
}

// SpeakerCount reports the number of distinct non-empty speaker labels.
func SpeakerCount(segments []types.MergedSegment) int {
	seen := make(map[string]struct{})
	for _, s := range segments {
		if s.Speaker != "" {
			seen[s.Speaker] = struct{}{}
		}
	}
	return len(seen)
}

// bestOverlap returns the speaker with the largest accumulated overlap against
// [t.Start, t.End], or "" when no turn overlaps. First-seen order breaks ties.
func bestOverlap(t types.TranscriptSegment, speakerSegments []types.SpeakerSegment) string {
	overlaps := make(map[string]float64)
	var order []string

	for _, s := range speakerSegments {
		start := max(t.Start, s.Start)
		end := min(t.End, s.End)
		if start >= end {
			continue
		}
		if _, seen := overlaps[s.Speaker]; !seen {
			order = append(order, s.Speaker)
		}
		overlaps[s.Speaker] += end - start
	}

	best := ""
	bestOverlap := 0.0
	for _, speaker := range order {
		if overlaps[speaker] > bestOverlap {
			best = speaker
			bestOverlap = overlaps[speaker]
		}
	}
	return best
}

// nearest returns the speaker of the turn closest to the segment midpoint, or
// "" when there are no turns. A midpoint inside a turn has distance zero.
func nearest(t types.TranscriptSegment, speakerSegments []types.SpeakerSegment) string {
	mid := (t.Start + t.End) / 2

	best := ""
	bestDistance := 0.0
	for _, s := range speakerSegments {
		var distance float64
		switch {
		case mid < s.Start:
			distance = s.Start - mid
		case mid > s.End:
			distance = mid - s.End
		default:
			distance = 0
		}
		if best == "" || distance < bestDistance {
			best = s.Speaker
			bestDistance = distance
		}
	}
	return best
}
