package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"meetbrief/types"
)

const decisionsSystem = "You are a professional meeting-notes assistant who identifies the consensus and decisions reached in meetings. Reply with JSON only."

const decisionsPrompt = `You are a professional meeting-notes assistant. Extract every decision from the following meeting transcript.

Transcript:
%s

Extract:
1. Points where consensus was reached
2. Decisions that were made
3. Directions or strategies that were confirmed
4. Proposals that were agreed on

For each decision, identify:
- The decision itself
- The discussion background (why this decision was made)
- Its scope of impact

Reply using this JSON format and nothing else:
` + "```json" + `
{
  "items": [
    {
      "decision": "the decision",
      "background": "brief discussion background",
      "impact": "scope of impact or null",
      "confidence": "high/medium/low, from how explicit the discussion was"
    }
  ]
}
` + "```" + `

Notes:
- Only include points with explicit consensus, not topics still under discussion
- If there are no decisions, reply {"items": []}`

// Decision is one extracted point of consensus.
type Decision struct {
	Decision   string `json:"decision"`
	Background string `json:"background,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Confidence string `json:"confidence"`
}

// DecisionsResult is the decisions step's outcome.
type DecisionsResult struct {
	Items []Decision `json:"items"`
	Count int        `json:"count"`
}

func (*DecisionsResult) Step() string { return StepDecisions }
func (*DecisionsResult) isResult()    {}

// DecisionsProcessor extracts decisions and consensus from the transcript.
type DecisionsProcessor struct {
	LLM completer
}

func (*DecisionsProcessor) Name() string { return StepDecisions }

func (p *DecisionsProcessor) Process(ctx context.Context, transcript string, segments []types.MergedSegment, prior *Results) (Result, error) {
	prompt := fmt.Sprintf(decisionsPrompt, truncate(transcript, 15000))
	reply, err := p.LLM.Complete(ctx, decisionsSystem, prompt, 0.2, 2000)
	if err != nil {
		return nil, fmt.Errorf("extracting decisions: %w", err)
	}

	var parsed struct {
		Items []Decision `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		log.Printf("[Decisions] unparseable LLM reply: %.200s", reply)
	}
	return &DecisionsResult{Items: parsed.Items, Count: len(parsed.Items)}, nil
}
