package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"meetbrief/types"
)

const summarySystem = "You are a professional meeting-notes assistant who integrates analysis results into structured summaries. Output the summary directly in Markdown."

const summaryPrompt = `You are a professional meeting-notes assistant. Generate a complete meeting summary report from the information below.

## Meeting transcript (excerpt)
%s

## Analyzed information

### Speaker analysis
%s

### Action items
%s

### Decisions
%s

---

Generate a well-structured meeting summary from the above. Use this layout:

## Topic
(one line, at most a dozen words, e.g. "Product launch timeline discussion")

## Participants
(participants and their roles, from the speaker analysis)

## Key points
(the 3-5 most important discussion points, 1-2 sentences each)

## Action items
(formatted as "- [ ] task @assignee (deadline)")

## Decisions
(the points where consensus was reached)

## Interaction
(a brief note on how the meeting flowed)

Keep the style professional and concise.`

// SummaryResult is the integrating step's outcome.
type SummaryResult struct {
	Content          string   `json:"content"`
	IntegratedFrom   []string `json:"integrated_from"`
	TranscriptLength int      `json:"transcript_length"`
}

func (*SummaryResult) Step() string { return StepSummary }
func (*SummaryResult) isResult()    {}

// SummaryProcessor integrates the three upstream analyses into one narrative
// summary. It is the only step that reads prior results, so it must run last.
type SummaryProcessor struct {
	LLM completer
}

func (*SummaryProcessor) Name() string { return StepSummary }

func (p *SummaryProcessor) Process(ctx context.Context, transcript string, segments []types.MergedSegment, prior *Results) (Result, error) {
	if prior == nil {
		prior = &Results{}
	}

	prompt := fmt.Sprintf(summaryPrompt,
		transcriptExcerpt(transcript),
		formatSpeakers(prior.Speakers),
		formatActions(prior.Actions),
		formatDecisions(prior.Decisions),
	)

	content, err := p.LLM.Complete(ctx, summarySystem, prompt, 0.3, 3000)
	if err != nil {
		return nil, fmt.Errorf("generating summary: %w", err)
	}

	return &SummaryResult{
		Content:          content,
		IntegratedFrom:   prior.Completed(),
		TranscriptLength: len(transcript),
	}, nil
}

// transcriptExcerpt keeps the head and tail of a long transcript so the prompt
// still spans the whole meeting.
func transcriptExcerpt(transcript string) string {
	const maxChars = 6000
	if len(transcript) <= maxChars {
		return transcript
	}
	return transcript[:4000] + "\n\n[... middle omitted ...]\n\n" + transcript[len(transcript)-2000:]
}

func formatSpeakers(r *SpeakersResult) string {
	if r == nil {
		return "(no speaker information)"
	}

	var lines []string
	if len(r.Stats) > 0 {
		lines = append(lines, "**Speaking time:**")
		speakers := make([]string, 0, len(r.Stats))
		for speaker := range r.Stats {
			speakers = append(speakers, speaker)
		}
		sort.Strings(speakers)
		for _, speaker := range speakers {
			s := r.Stats[speaker]
			lines = append(lines, fmt.Sprintf("- %s: %.1f min (%.1f%%), %d utterances",
				speaker, s.DurationMins, s.Percentage, s.SegmentCount))
		}
	}

	if r.Analysis != nil && len(r.Analysis.Speakers) > 0 {
		lines = append(lines, "", "**Roles:**")
		speakers := make([]string, 0, len(r.Analysis.Speakers))
		for speaker := range r.Analysis.Speakers {
			speakers = append(speakers, speaker)
		}
		sort.Strings(speakers)
		for _, speaker := range speakers {
			profile := r.Analysis.Speakers[speaker]
			lines = append(lines, fmt.Sprintf("- %s: %s", speaker, profile.Role))
			if profile.Stance != "" {
				lines = append(lines, fmt.Sprintf("  - stance: %s", profile.Stance))
			}
			points := profile.MainPoints
			if len(points) > 3 {
				points = points[:3]
			}
			for _, point := range points {
				lines = append(lines, fmt.Sprintf("  - %s", point))
			}
		}
	}

	if r.Analysis != nil && r.Analysis.InteractionPattern != "" {
		lines = append(lines, "", fmt.Sprintf("**Interaction:** %s", r.Analysis.InteractionPattern))
	}

	if len(lines) == 0 {
		return "(no speaker information)"
	}
	return strings.Join(lines, "\n")
}

func formatActions(r *ActionsResult) string {
	if r == nil || len(r.Items) == 0 {
		return "(no action items)"
	}

	var lines []string
	for _, item := range r.Items {
		line := "- " + item.Task
		if item.Assignee != "" {
			line += " @" + item.Assignee
		}
		if item.Deadline != "" {
			line += fmt.Sprintf(" (due: %s)", item.Deadline)
		}
		if item.Priority != "" {
			line += fmt.Sprintf(" [priority: %s]", item.Priority)
		}
		lines = append(lines, line)
		if item.Context != "" {
			lines = append(lines, "  context: "+item.Context)
		}
	}
	return strings.Join(lines, "\n")
}

func formatDecisions(r *DecisionsResult) string {
	if r == nil || len(r.Items) == 0 {
		return "(no decisions)"
	}

	var lines []string
	for _, item := range r.Items {
		line := "- " + item.Decision
		if item.Confidence != "" && item.Confidence != "high" {
			line += fmt.Sprintf(" [confidence: %s]", item.Confidence)
		}
		lines = append(lines, line)
		if item.Background != "" {
			lines = append(lines, "  background: "+item.Background)
		}
	}
	return strings.Join(lines, "\n")
}
