package main

import (
	"fmt"
	"strings"

	"meetbrief/meetings"
)

// generateMarkdownExport renders a meeting as a standalone markdown document:
// a metadata header, the summary if present, then the transcript fenced so
// timestamps keep their alignment.
func generateMarkdownExport(m meetings.Meeting) string {
	lines := []string{
		"# " + m.Title,
		"",
		"**File**: " + m.Filename,
		"**Duration**: " + formatDuration(m.Duration),
		"**Language**: " + languageLabel(m.Language),
		"**Created**: " + createdLabel(m),
		"",
		"---",
		"",
	}

	if m.Summary != "" {
		lines = append(lines,
			"# Summary",
			"",
			m.Summary,
			"",
			"---",
			"",
		)
	}

	if m.Transcript != "" {
		lines = append(lines,
			"# Transcript",
			"",
			"```",
			m.Transcript,
			"```",
		)
	}

	return strings.Join(lines, "\n")
}

// generateTxtExport renders a meeting as a plain-text document with the same
// content as the markdown export.
func generateTxtExport(m meetings.Meeting) string {
	lines := []string{
		"Title: " + m.Title,
		"File: " + m.Filename,
		"Duration: " + formatDuration(m.Duration),
		"Language: " + languageLabel(m.Language),
		"Created: " + createdLabel(m),
		"",
		strings.Repeat("=", 50),
		"",
	}

	if m.Summary != "" {
		lines = append(lines,
			"[Summary]",
			"",
			m.Summary,
			"",
			strings.Repeat("=", 50),
			"",
		)
	}

	if m.Transcript != "" {
		lines = append(lines,
			"[Transcript]",
			"",
			m.Transcript,
		)
	}

	return strings.Join(lines, "\n")
}

// formatDuration renders an audio length for humans, e.g. "1h 2m 5s".
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func languageLabel(language string) string {
	if language == "" {
		return "not detected"
	}
	return language
}

func createdLabel(m meetings.Meeting) string {
	if m.CreatedAt.IsZero() {
		return ""
	}
	return m.CreatedAt.Format("2006-01-02 15:04:05")
}
