package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"meetbrief/types"
)

const speakersSystem = "You are a professional meeting analyst who studies the roles and viewpoints of meeting participants. Reply with JSON only."

const speakersPrompt = `You are a professional meeting analyst. Based on the following meeting content, analyze each speaker's viewpoint and role.

%s

Analyze:
1. Each speaker's role in the meeting (e.g. leader, questioner, reporter)
2. Each speaker's main points or position
3. The interaction pattern between speakers (e.g. who answers whose questions)

Reply using this JSON format:
` + "```json" + `
{
  "speakers": {
    "speaker_0": {
      "role": "role description",
      "main_points": ["point 1", "point 2"],
      "stance": "overall position or attitude, briefly"
    }
  },
  "interaction_pattern": "description of the interaction pattern"
}
` + "```"

// SpeakerStats summarizes one speaker's share of the meeting.
type SpeakerStats struct {
	DurationMins float64 `json:"duration_mins"`
	Percentage   float64 `json:"percentage"`
	SegmentCount int     `json:"segment_count"`
}

// SpeakerProfile is the LLM's read on one speaker.
type SpeakerProfile struct {
	Role       string   `json:"role"`
	MainPoints []string `json:"main_points"`
	Stance     string   `json:"stance"`
}

// SpeakersAnalysis is the structured LLM reply.
type SpeakersAnalysis struct {
	Speakers           map[string]SpeakerProfile `json:"speakers"`
	InteractionPattern string                    `json:"interaction_pattern"`
}

// SpeakersResult is the speakers step's outcome. Analysis is nil when the LLM
// reply could not be parsed; the stats are computed locally and always present.
type SpeakersResult struct {
	Stats    map[string]SpeakerStats `json:"stats"`
	Analysis *SpeakersAnalysis       `json:"analysis"`
}

func (*SpeakersResult) Step() string { return StepSpeakers }
func (*SpeakersResult) isResult()    {}

// SpeakersProcessor analyzes who spoke, for how long, and in what role.
type SpeakersProcessor struct {
	LLM completer
}

func (*SpeakersProcessor) Name() string { return StepSpeakers }

func (p *SpeakersProcessor) Process(ctx context.Context, transcript string, segments []types.MergedSegment, prior *Results) (Result, error) {
	stats := speakerStats(segments)
	if len(stats) == 0 {
		return nil, fmt.Errorf("no speaker information in segments")
	}

	content := speakersContent(segments)
	reply, err := p.LLM.Complete(ctx, speakersSystem, fmt.Sprintf(speakersPrompt, truncate(content, 12000)), 0.3, 2000)
	if err != nil {
		return nil, fmt.Errorf("analyzing speakers: %w", err)
	}

	result := &SpeakersResult{Stats: stats}
	var parsed SpeakersAnalysis
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		log.Printf("[Speakers] unparseable LLM reply: %.200s", reply)
	} else {
		result.Analysis = &parsed
	}
	return result, nil
}

func speakerStats(segments []types.MergedSegment) map[string]SpeakerStats {
	durations := make(map[string]float64)
	counts := make(map[string]int)
	total := 0.0
	for _, seg := range segments {
		if seg.Speaker == "" {
			continue
		}
		d := seg.End - seg.Start
		durations[seg.Speaker] += d
		counts[seg.Speaker]++
		total += d
	}

	stats := make(map[string]SpeakerStats, len(durations))
	for speaker, d := range durations {
		pct := 0.0
		if total > 0 {
			pct = d / total * 100
		}
		stats[speaker] = SpeakerStats{
			DurationMins: round1(d / 60),
			Percentage:   round1(pct),
			SegmentCount: counts[speaker],
		}
	}
	return stats
}

// speakersContent samples up to 20 utterances per speaker for the prompt.
func speakersContent(segments []types.MergedSegment) string {
	texts := make(map[string][]string)
	for _, seg := range segments {
		if seg.Speaker != "" && seg.Text != "" {
			texts[seg.Speaker] = append(texts[seg.Speaker], seg.Text)
		}
	}

	speakers := make([]string, 0, len(texts))
	for speaker := range texts {
		speakers = append(speakers, speaker)
	}
	sort.Strings(speakers)

	var sections []string
	for _, speaker := range speakers {
		all := texts[speaker]
		sample := all
		if len(sample) > 20 {
			sample = sample[:20]
		}
		var b strings.Builder
		fmt.Fprintf(&b, "### Utterances by %s:\n", speaker)
		for _, t := range sample {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
		if len(all) > 20 {
			fmt.Fprintf(&b, "  ... (%d utterances total)\n", len(all))
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
