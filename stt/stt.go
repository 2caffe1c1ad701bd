// Package stt defines the transcription engine contract and an exec-based
// implementation around a whisper-style command-line tool. The model itself is
// an opaque producer of timestamped segments.
package stt

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"meetbrief/types"
)

// Engine turns an audio file into timestamped transcript segments.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (types.TranscribeOutput, error)
}

// WhisperCLI shells out to an external whisper-compatible binary that writes a
// JSON sidecar next to the input file.
type WhisperCLI struct {
	Binary string // e.g. "whisperx"
	Model  string // optional --model override
}

var _ Engine = WhisperCLI{}

type whisperResult struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w WhisperCLI) Transcribe(ctx context.Context, audioPath string) (types.TranscribeOutput, error) {
	binary := w.Binary
	if binary == "" {
		binary = "whisperx"
	}
	args := []string{audioPath, "--output_format", "json"}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	stderr, _ := cmd.StderrPipe()
	stdout, _ := cmd.StdoutPipe()
	if err := cmd.Start(); err != nil {
		return types.TranscribeOutput{}, fmt.Errorf("starting %s: %w", binary, err)
	}

	go logLines(stderr)
	go logLines(stdout)

	if err := cmd.Wait(); err != nil {
		return types.TranscribeOutput{}, fmt.Errorf("transcribing with %s: %w", binary, err)
	}

	sidecar := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
	f, err := os.Open(sidecar)
	if err != nil {
		return types.TranscribeOutput{}, fmt.Errorf("opening transcription result: %w", err)
	}
	defer f.Close()

	var result whisperResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return types.TranscribeOutput{}, fmt.Errorf("decoding transcription result: %w", err)
	}

	out := types.TranscribeOutput{
		Language: result.Language,
		Segments: make([]types.TranscriptSegment, len(result.Segments)),
	}
	var text []string
	for i, s := range result.Segments {
		out.Segments[i] = types.TranscriptSegment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)}
		text = append(text, out.Segments[i].Text)
	}
	out.Transcript = strings.Join(text, "\n")
	return out, nil
}

func logLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Println("[Whisper]", scanner.Text())
	}
}
