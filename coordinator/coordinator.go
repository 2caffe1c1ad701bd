// Package coordinator tracks in-flight meeting jobs and reconciles worker
// results arriving asynchronously through the shared result store.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"meetbrief/analysis"
	"meetbrief/meetings"
	"meetbrief/merge"
	"meetbrief/queue"
	"meetbrief/transcript"
	"meetbrief/types"
)

// resultStore is the ephemeral coordination channel shared with the worker
// processes. Best-effort and TTL-bounded; the coordinator is its only reader.
type resultStore interface {
	WorkerResult(ctx context.Context, meetingID int64, kind string) (*queue.WorkerResult, error)
	ClearWorkerResult(ctx context.Context, meetingID int64, kind string) error
	SetTaskStatus(ctx context.Context, meetingID int64, status, message string) error
}

// meetingStore is the persisted record the outside world observes.
type meetingStore interface {
	Get(ctx context.Context, id int64) (meetings.Meeting, error)
	SaveTranscript(ctx context.Context, id int64, transcript, language, status string) error
	CompleteSummary(ctx context.Context, id int64, summary string) error
	FailSummary(ctx context.Context, id int64, message string) error
	SetError(ctx context.Context, id int64, message string) error
}

// artifactStore holds the durable per-meeting files; these survive cleanup of
// the coordination keys.
type artifactStore interface {
	ReadTranscribe(path string) (types.TranscribeOutput, error)
	ReadDiarize(path string) (types.DiarizeOutput, error)
	WriteMerged(meetingID int64, language string, segments []types.MergedSegment, speakerCount int) error
	WriteAnalysis(meetingID int64, results *analysis.Results) error
	WriteSummary(meetingID int64, content string) error
	WriteTranscriptText(meetingID int64, title, language, transcript string) error
}

// analyzer runs the full analysis pipeline.
type analyzer interface {
	Run(ctx context.Context, transcript string, segments []types.MergedSegment) *analysis.Results
}

type pendingTask struct {
	mode        string
	diarization bool
	startedAt   time.Time
}

// TaskCoordinator owns the in-memory registry of in-flight jobs and drives
// each one through transcription, optional diarization merge, persistence, and
// detached analysis. Construct one instance at process start and share it;
// running two coordinators against the same store is unsafe.
type TaskCoordinator struct {
	store     resultStore
	records   meetingStore
	artifacts artifactStore
	pipeline  analyzer // nil disables analysis

	pollInterval time.Duration
	errorBackoff time.Duration

	mu      sync.Mutex
	pending map[int64]pendingTask

	// analyses tracks detached analysis goroutines so shutdown can join them.
	analyses sync.WaitGroup
}

// New validates the collaborators and builds a coordinator. pipeline may be
// nil, in which case summarize-mode jobs complete with an error message on the
// record instead of a summary.
func New(store resultStore, records meetingStore, artifacts artifactStore, pipeline analyzer, pollInterval, errorBackoff time.Duration) (*TaskCoordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("coordinator: result store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("coordinator: meeting store is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("coordinator: artifact store is required")
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if errorBackoff <= 0 {
		errorBackoff = 5 * time.Second
	}
	return &TaskCoordinator{
		store:        store,
		records:      records,
		artifacts:    artifacts,
		pipeline:     pipeline,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
		pending:      make(map[int64]pendingTask),
	}, nil
}

// AddTask registers a job for coordination. Re-adding the same id overwrites
// the prior bookkeeping; no state is merged.
func (c *TaskCoordinator) AddTask(meetingID int64, mode string, diarization bool) {
	c.mu.Lock()
	c.pending[meetingID] = pendingTask{mode: mode, diarization: diarization, startedAt: time.Now()}
	c.mu.Unlock()
	log.Printf("[Coordinator] task added: meeting %d, mode %s, diarization %t", meetingID, mode, diarization)
}

// Pending returns a snapshot of registered job ids.
func (c *TaskCoordinator) Pending() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

func (c *TaskCoordinator) deregister(meetingID int64) {
	c.mu.Lock()
	delete(c.pending, meetingID)
	c.mu.Unlock()
}

// CheckAndProcess advances one job. It returns false while the job is unknown
// or still waiting on worker results, and true once a terminal or
// semi-terminal action was taken this tick. It never blocks waiting for a
// result: absence means an immediate false.
func (c *TaskCoordinator) CheckAndProcess(ctx context.Context, meetingID int64) bool {
	c.mu.Lock()
	task, ok := c.pending[meetingID]
	c.mu.Unlock()
	if !ok {
		return false
	}

	transcribeResult, err := c.store.WorkerResult(ctx, meetingID, types.WorkerTranscribe)
	if err != nil {
		log.Printf("[Coordinator] meeting %d: reading transcribe result: %v", meetingID, err)
		return false
	}
	if transcribeResult == nil {
		return false
	}

	if transcribeResult.Status == types.StatusError {
		c.handleError(ctx, meetingID, "transcribe", transcribeResult.Error)
		return true
	}

	if task.diarization {
		diarizeResult, err := c.store.WorkerResult(ctx, meetingID, types.WorkerDiarize)
		if err != nil {
			log.Printf("[Coordinator] meeting %d: reading diarize result: %v", meetingID, err)
			return false
		}
		if diarizeResult == nil {
			// transcription success alone is not enough to proceed
			return false
		}
		if diarizeResult.Status == types.StatusError {
			log.Printf("[Coordinator] meeting %d: diarization failed, falling back to plain transcript", meetingID)
			c.processTranscribeOnly(ctx, meetingID, transcribeResult, task)
		} else {
			c.processWithDiarization(ctx, meetingID, transcribeResult, diarizeResult, task)
		}
	} else {
		c.processTranscribeOnly(ctx, meetingID, transcribeResult, task)
	}

	return true
}

func (c *TaskCoordinator) processTranscribeOnly(ctx context.Context, meetingID int64, result *queue.WorkerResult, task pendingTask) {
	data, err := c.artifacts.ReadTranscribe(result.Filepath)
	if err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}

	segments := untagged(data.Segments)
	formatted := transcript.Format(segments, false)
	if err := c.saveAndAnalyze(ctx, meetingID, formatted, segments, data.Language, task.mode); err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}
	c.cleanup(ctx, meetingID)
}

func (c *TaskCoordinator) processWithDiarization(ctx context.Context, meetingID int64, transcribeResult, diarizeResult *queue.WorkerResult, task pendingTask) {
	transcribeData, err := c.artifacts.ReadTranscribe(transcribeResult.Filepath)
	if err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}
	diarizeData, err := c.artifacts.ReadDiarize(diarizeResult.Filepath)
	if err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}

	var segments []types.MergedSegment
	tagged := len(diarizeData.SpeakerSegments) > 0
	if tagged {
		segments = merge.Merge(transcribeData.Segments, diarizeData.SpeakerSegments)
	} else {
		segments = untagged(transcribeData.Segments)
	}

	if err := c.artifacts.WriteMerged(meetingID, transcribeData.Language, segments, merge.SpeakerCount(segments)); err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}

	formatted := transcript.Format(segments, tagged)
	if err := c.saveAndAnalyze(ctx, meetingID, formatted, segments, transcribeData.Language, task.mode); err != nil {
		c.handleError(ctx, meetingID, "coordinator", err.Error())
		return
	}
	c.cleanup(ctx, meetingID)
}

// saveAndAnalyze persists the transcript, branches on mode, and for summarize
// mode hands the job off to a detached analysis goroutine that the poll loop
// does not wait for.
func (c *TaskCoordinator) saveAndAnalyze(ctx context.Context, meetingID int64, formatted string, segments []types.MergedSegment, language, mode string) error {
	record, err := c.records.Get(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("loading meeting record: %w", err)
	}

	status := types.StatusSummarizing
	statusMessage := "analyzing meeting content"
	if mode == types.ModeTranscribeOnly {
		status = types.StatusCompleted
		statusMessage = "transcription complete"
	}

	if err := c.records.SaveTranscript(ctx, meetingID, formatted, language, status); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	if err := c.store.SetTaskStatus(ctx, meetingID, status, statusMessage); err != nil {
		log.Printf("[Coordinator] meeting %d: updating task status: %v", meetingID, err)
	}
	if err := c.artifacts.WriteTranscriptText(meetingID, record.Title, language, formatted); err != nil {
		return fmt.Errorf("writing transcript artifact: %w", err)
	}
	log.Printf("[Coordinator] meeting %d: transcript saved", meetingID)

	c.deregister(meetingID)

	if mode != types.ModeTranscribeOnly {
		c.StartAnalysis(meetingID, formatted, segments)
	}
	return nil
}

// StartAnalysis launches the analysis pipeline for a meeting as a detached
// unit of work. The caller gets control back immediately; Wait joins all
// in-flight analyses at shutdown.
func (c *TaskCoordinator) StartAnalysis(meetingID int64, formatted string, segments []types.MergedSegment) {
	c.analyses.Add(1)
	go func() {
		defer c.analyses.Done()
		// detached from the poll loop's context on purpose: a shutdown of the
		// loop must not abort an analysis that is already running
		c.runAnalysis(context.Background(), meetingID, formatted, segments)
	}()
}

func (c *TaskCoordinator) runAnalysis(ctx context.Context, meetingID int64, formatted string, segments []types.MergedSegment) {
	log.Printf("[Coordinator] meeting %d: analysis started", meetingID)

	fail := func(reason string) {
		log.Printf("[Coordinator] meeting %d: analysis failed: %s", meetingID, reason)
		message := "summary generation failed: " + reason
		if err := c.records.FailSummary(ctx, meetingID, message); err != nil {
			log.Printf("[Coordinator] meeting %d: recording analysis failure: %v", meetingID, err)
		}
		if err := c.store.SetTaskStatus(ctx, meetingID, types.StatusCompleted, message); err != nil {
			log.Printf("[Coordinator] meeting %d: updating task status: %v", meetingID, err)
		}
	}

	if c.pipeline == nil {
		fail("analysis pipeline not configured")
		return
	}

	plain := transcript.ExtractPlainText(formatted)
	results := c.pipeline.Run(ctx, plain, segments)

	if results.Summary == nil || results.Summary.Content == "" {
		fail("no content")
		return
	}

	if err := c.records.CompleteSummary(ctx, meetingID, results.Summary.Content); err != nil {
		fail(err.Error())
		return
	}
	if err := c.store.SetTaskStatus(ctx, meetingID, types.StatusCompleted, "analysis complete"); err != nil {
		log.Printf("[Coordinator] meeting %d: updating task status: %v", meetingID, err)
	}

	if err := c.artifacts.WriteAnalysis(meetingID, results); err != nil {
		log.Printf("[Coordinator] meeting %d: writing analysis artifact: %v", meetingID, err)
	}
	if err := c.artifacts.WriteSummary(meetingID, results.Summary.Content); err != nil {
		log.Printf("[Coordinator] meeting %d: writing summary artifact: %v", meetingID, err)
	}

	log.Printf("[Coordinator] meeting %d: analysis complete", meetingID)
}

// handleError moves a job to its terminal error state: the record carries
// "source: message", the coordination keys are cleared, and the job is
// deregistered.
func (c *TaskCoordinator) handleError(ctx context.Context, meetingID int64, source, message string) {
	log.Printf("[Coordinator] meeting %d: %s failed: %s", meetingID, source, message)
	if err := c.records.SetError(ctx, meetingID, fmt.Sprintf("%s: %s", source, message)); err != nil {
		log.Printf("[Coordinator] meeting %d: recording error: %v", meetingID, err)
	}
	if err := c.store.SetTaskStatus(ctx, meetingID, types.StatusError, message); err != nil {
		log.Printf("[Coordinator] meeting %d: updating task status: %v", meetingID, err)
	}
	c.cleanup(ctx, meetingID)
	c.deregister(meetingID)
}

// cleanup deletes both worker-result keys for a meeting so a result is never
// consumed twice. Durable artifacts are kept.
func (c *TaskCoordinator) cleanup(ctx context.Context, meetingID int64) {
	for _, kind := range []string{types.WorkerTranscribe, types.WorkerDiarize} {
		if err := c.store.ClearWorkerResult(ctx, meetingID, kind); err != nil {
			log.Printf("[Coordinator] meeting %d: clearing %s result: %v", meetingID, kind, err)
		}
	}
}

// Wait blocks until all detached analyses have finished. Called on shutdown
// after the poll loop has stopped.
func (c *TaskCoordinator) Wait() {
	c.analyses.Wait()
}

// untagged lifts plain transcript segments into merged form with no speaker.
func untagged(segments []types.TranscriptSegment) []types.MergedSegment {
	out := make([]types.MergedSegment, len(segments))
	for i, s := range segments {
		out[i] = types.MergedSegment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}
