package types

// TranscriptSegment is one timed span of recognized speech, as produced by the
// transcription worker. Immutable once written.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeakerSegment is one speaker turn from the diarization worker. Speaker labels
// are opaque and not stable across meetings.
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// MergedSegment is a transcript segment annotated with a speaker label. On the
// transcript-only path Speaker is left empty.
type MergedSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// TranscribeOutput is the transcription worker's result artifact
// ({id}_transcribe.json).
type TranscribeOutput struct {
	MeetingID  int64               `json:"meeting_id"`
	Transcript string              `json:"transcript"`
	Language   string              `json:"language"`
	Segments   []TranscriptSegment `json:"segments"`
}

// DiarizeOutput is the diarization worker's result artifact ({id}_diarize.json).
type DiarizeOutput struct {
	MeetingID       int64            `json:"meeting_id"`
	SpeakerSegments []SpeakerSegment `json:"speaker_segments"`
}

// Processing modes.
const (
	ModeTranscribeOnly         = "transcribe_only"
	ModeTranscribeAndSummarize = "transcribe_and_summarize"
)

// Meeting record statuses.
const (
	StatusPending      = "pending"
	StatusTranscribing = "transcribing"
	StatusSummarizing  = "summarizing"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// Additional task statuses reported through the queue status hash.
const (
	StatusQueued         = "queued"
	StatusTranscribeDone = "transcribe_done"
)

// Worker kinds, used as the second half of result-store keys.
const (
	WorkerTranscribe = "transcribe"
	WorkerDiarize    = "diarize"
)
