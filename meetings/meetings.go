package meetings

import "time"

// Meeting is the persisted record for one uploaded recording. The coordinator
// is the sole writer of transcript/language/summary and the derived status
// transitions while a job is in flight.
type Meeting struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Filename     string    `json:"filename"`
	Filepath     string    `json:"filepath,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	Status       string    `json:"status"`
	Transcript   string    `json:"transcript,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Language     string    `json:"language,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
