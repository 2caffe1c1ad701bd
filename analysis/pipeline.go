// Package analysis runs an ordered chain of meeting-analysis steps over a
// finished transcript and accumulates their typed results.
package analysis

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"meetbrief/types"
)

// Step names, used as discriminants in the persisted analysis mapping.
const (
	StepSpeakers  = "speakers"
	StepActions   = "actions"
	StepDecisions = "decisions"
	StepSummary   = "summary"
)

// Result is the closed set of step outcomes. Each implementation carries its
// step name so the summary step can pattern-match on prior results instead of
// probing an untyped map.
type Result interface {
	Step() string
	isResult()
}

// Processor is a single analysis step. Later steps may read earlier steps'
// outcomes through prior; earlier steps never see later ones.
type Processor interface {
	Name() string
	Process(ctx context.Context, transcript string, segments []types.MergedSegment, prior *Results) (Result, error)
}

// Results accumulates every step's outcome over one pipeline run. A failed
// step occupies its slot in Errors instead; nothing is ever pruned.
type Results struct {
	Speakers  *SpeakersResult
	Actions   *ActionsResult
	Decisions *DecisionsResult
	Summary   *SummaryResult

	Errors map[string]string
}

// Completed lists the names of steps that produced a result, in pipeline order.
func (r *Results) Completed() []string {
	var steps []string
	if r.Speakers != nil {
		steps = append(steps, StepSpeakers)
	}
	if r.Actions != nil {
		steps = append(steps, StepActions)
	}
	if r.Decisions != nil {
		steps = append(steps, StepDecisions)
	}
	if r.Summary != nil {
		steps = append(steps, StepSummary)
	}
	return steps
}

func (r *Results) record(res Result) {
	switch v := res.(type) {
	case *SpeakersResult:
		r.Speakers = v
	case *ActionsResult:
		r.Actions = v
	case *DecisionsResult:
		r.Decisions = v
	case *SummaryResult:
		r.Summary = v
	}
}

func (r *Results) fail(step, msg string) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[step] = msg
}

// MarshalJSON renders the step-name-to-payload mapping persisted as the
// analysis artifact; failed steps appear as {"error": message}.
func (r *Results) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4)
	if r.Speakers != nil {
		out[StepSpeakers] = r.Speakers
	}
	if r.Actions != nil {
		out[StepActions] = r.Actions
	}
	if r.Decisions != nil {
		out[StepDecisions] = r.Decisions
	}
	if r.Summary != nil {
		out[StepSummary] = r.Summary
	}
	for step, msg := range r.Errors {
		out[step] = map[string]string{"error": msg}
	}
	return json.Marshal(out)
}

// Pipeline executes processors strictly in registration order.
type Pipeline struct {
	processors []Processor
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add appends a processor. Returns the pipeline for chaining.
func (p *Pipeline) Add(proc Processor) *Pipeline {
	p.processors = append(p.processors, proc)
	return p
}

// Run executes every processor. A failing step is recorded under its name and
// the run continues; one step's failure never prevents independent steps from
// running. The returned Results always covers all registered steps.
func (p *Pipeline) Run(ctx context.Context, transcript string, segments []types.MergedSegment) *Results {
	results := &Results{}
	for _, proc := range p.processors {
		res, err := proc.Process(ctx, transcript, segments, results)
		if err != nil {
			log.Printf("[Pipeline] step %s failed: %v", proc.Name(), err)
			results.fail(proc.Name(), err.Error())
			continue
		}
		results.record(res)
	}
	return results
}

// completer is the LLM surface the processors need.
type completer interface {
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
}

// NewFullPipeline wires the fixed production composition. The first three
// steps depend only on the transcript and segments; summary integrates their
// results and must run last.
func NewFullPipeline(llm completer) *Pipeline {
	return NewPipeline().
		Add(&SpeakersProcessor{LLM: llm}).
		Add(&ActionsProcessor{LLM: llm}).
		Add(&DecisionsProcessor{LLM: llm}).
		Add(&SummaryProcessor{LLM: llm})
}

var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// extractJSON pulls the payload out of a fenced ```json block, falling back to
// the trimmed reply when no fence is present.
func extractJSON(content string) string {
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// truncate caps prompt inputs so a long meeting cannot blow the context window.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}
