package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"meetbrief/types"
)

const actionsSystem = "You are a professional meeting-notes assistant who identifies and extracts action items from meeting conversations. Reply with JSON only."

const actionsPrompt = `You are a professional meeting-notes assistant. Extract every action item from the following meeting transcript.

Transcript:
%s

Extract anything that is:
1. A task someone needs to carry out
2. Something that needs follow-up
3. Something that needs to be prepared
4. A commitment someone made

For each action item, identify where possible:
- The assignee (if mentioned)
- The deadline (if mentioned)
- The priority, judged from tone: high/medium/low

Reply using this JSON format and nothing else:
` + "```json" + `
{
  "items": [
    {
      "task": "task description",
      "assignee": "assignee or null",
      "deadline": "deadline or null",
      "priority": "high/medium/low",
      "context": "brief note on why this needs doing"
    }
  ]
}
` + "```" + `

If there are no action items, reply:
` + "```json" + `
{"items": []}
` + "```"

// ActionItem is one extracted to-do.
type ActionItem struct {
	Task     string `json:"task"`
	Assignee string `json:"assignee,omitempty"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority"`
	Context  string `json:"context,omitempty"`
}

// ActionsResult is the actions step's outcome.
type ActionsResult struct {
	Items []ActionItem `json:"items"`
	Count int          `json:"count"`
}

func (*ActionsResult) Step() string { return StepActions }
func (*ActionsResult) isResult()    {}

// ActionsProcessor extracts action items from the transcript.
type ActionsProcessor struct {
	LLM completer
}

func (*ActionsProcessor) Name() string { return StepActions }

func (p *ActionsProcessor) Process(ctx context.Context, transcript string, segments []types.MergedSegment, prior *Results) (Result, error) {
	prompt := fmt.Sprintf(actionsPrompt, truncate(transcript, 15000))
	reply, err := p.LLM.Complete(ctx, actionsSystem, prompt, 0.2, 2000)
	if err != nil {
		return nil, fmt.Errorf("extracting action items: %w", err)
	}

	var parsed struct {
		Items []ActionItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		// an unparseable reply degrades to an empty item list
		log.Printf("[Actions] unparseable LLM reply: %.200s", reply)
	}
	return &ActionsResult{Items: parsed.Items, Count: len(parsed.Items)}, nil
}
