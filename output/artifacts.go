// Package output manages the durable per-meeting artifacts under the results
// directory. Artifacts outlive the ephemeral Redis coordination keys.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meetbrief/analysis"
	"meetbrief/types"
)

// Artifacts reads and writes the {id}_{kind} files in one results directory.
type Artifacts struct {
	dir string
}

func NewArtifacts(dir string) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	return &Artifacts{dir: dir}, nil
}

// Dir returns the results directory root.
func (a *Artifacts) Dir() string { return a.dir }

// Path builds the artifact path for one meeting and file suffix, e.g.
// Path(12, "merged.json") -> <dir>/12_merged.json.
func (a *Artifacts) Path(meetingID int64, suffix string) string {
	return filepath.Join(a.dir, fmt.Sprintf("%d_%s", meetingID, suffix))
}

// WriteTranscribe persists the transcription worker's result.
func (a *Artifacts) WriteTranscribe(meetingID int64, out types.TranscribeOutput) (string, error) {
	path := a.Path(meetingID, "transcribe.json")
	return path, writeJSON(path, out)
}

// ReadTranscribe loads a transcription result from an arbitrary path (the
// worker reports the location through the result store).
func (a *Artifacts) ReadTranscribe(path string) (types.TranscribeOutput, error) {
	var out types.TranscribeOutput
	if err := readJSON(path, &out); err != nil {
		return types.TranscribeOutput{}, fmt.Errorf("reading transcribe result: %w", err)
	}
	return out, nil
}

// WriteDiarize persists the diarization worker's result.
func (a *Artifacts) WriteDiarize(meetingID int64, out types.DiarizeOutput) (string, error) {
	path := a.Path(meetingID, "diarize.json")
	return path, writeJSON(path, out)
}

// ReadDiarize loads a diarization result.
func (a *Artifacts) ReadDiarize(path string) (types.DiarizeOutput, error) {
	var out types.DiarizeOutput
	if err := readJSON(path, &out); err != nil {
		return types.DiarizeOutput{}, fmt.Errorf("reading diarize result: %w", err)
	}
	return out, nil
}

// MergedOutput is the {id}_merged.json artifact.
type MergedOutput struct {
	MeetingID    int64                 `json:"meeting_id"`
	Language     string                `json:"language"`
	Segments     []types.MergedSegment `json:"segments"`
	SpeakerCount int                   `json:"speaker_count"`
}

// WriteMerged persists the speaker-annotated segment set for export and
// debugging.
func (a *Artifacts) WriteMerged(meetingID int64, language string, segments []types.MergedSegment, speakerCount int) error {
	return writeJSON(a.Path(meetingID, "merged.json"), MergedOutput{
		MeetingID:    meetingID,
		Language:     language,
		Segments:     segments,
		SpeakerCount: speakerCount,
	})
}

// WriteAnalysis persists the full step-name-to-result mapping.
func (a *Artifacts) WriteAnalysis(meetingID int64, results *analysis.Results) error {
	return writeJSON(a.Path(meetingID, "analysis.json"), results)
}

// WriteSummary persists the integrating step's text output verbatim.
func (a *Artifacts) WriteSummary(meetingID int64, content string) error {
	path := a.Path(meetingID, "summary.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// WriteTranscriptText persists the human-readable transcript export.
func (a *Artifacts) WriteTranscriptText(meetingID int64, title, language, transcript string) error {
	if language == "" {
		language = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting ID: %d\n", meetingID)
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	b.WriteString(transcript)

	path := a.Path(meetingID, "transcript.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing transcript file: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
