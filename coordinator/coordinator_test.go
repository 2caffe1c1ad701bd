package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetbrief/analysis"
	"meetbrief/meetings"
	"meetbrief/queue"
	"meetbrief/types"
)

type fakeResultStore struct {
	mu       sync.Mutex
	results  map[string]*queue.WorkerResult
	statuses map[int64]queue.TaskStatus
	cleared  []string
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{
		results:  make(map[string]*queue.WorkerResult),
		statuses: make(map[int64]queue.TaskStatus),
	}
}

func resultKey(id int64, kind string) string { return fmt.Sprintf("%d:%s", id, kind) }

func (s *fakeResultStore) put(id int64, kind string, r queue.WorkerResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey(id, kind)] = &r
}

func (s *fakeResultStore) WorkerResult(_ context.Context, id int64, kind string) (*queue.WorkerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[resultKey(id, kind)], nil
}

func (s *fakeResultStore) ClearWorkerResult(_ context.Context, id int64, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey(id, kind)
	delete(s.results, key)
	s.cleared = append(s.cleared, key)
	return nil
}

func (s *fakeResultStore) SetTaskStatus(_ context.Context, id int64, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = queue.TaskStatus{Status: status, Message: message}
	return nil
}

func (s *fakeResultStore) status(id int64) queue.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func (s *fakeResultStore) clearedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

type fakeMeetingStore struct {
	mu       sync.Mutex
	meetings map[int64]meetings.Meeting
}

func newFakeMeetingStore(ids ...int64) *fakeMeetingStore {
	s := &fakeMeetingStore{meetings: make(map[int64]meetings.Meeting)}
	for _, id := range ids {
		s.meetings[id] = meetings.Meeting{ID: id, Title: fmt.Sprintf("meeting %d", id), Status: types.StatusTranscribing}
	}
	return s
}

func (s *fakeMeetingStore) Get(_ context.Context, id int64) (meetings.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return meetings.Meeting{}, meetings.ErrNotFound
	}
	return m, nil
}

func (s *fakeMeetingStore) SaveTranscript(_ context.Context, id int64, transcript, language, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meetings[id]
	m.Transcript = transcript
	m.Language = language
	m.Status = status
	s.meetings[id] = m
	return nil
}

func (s *fakeMeetingStore) CompleteSummary(_ context.Context, id int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meetings[id]
	m.Summary = summary
	m.Status = types.StatusCompleted
	m.ErrorMessage = ""
	s.meetings[id] = m
	return nil
}

func (s *fakeMeetingStore) FailSummary(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meetings[id]
	m.Status = types.StatusCompleted
	m.ErrorMessage = message
	s.meetings[id] = m
	return nil
}

func (s *fakeMeetingStore) SetError(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meetings[id]
	m.Status = types.StatusError
	m.ErrorMessage = message
	s.meetings[id] = m
	return nil
}

func (s *fakeMeetingStore) get(id int64) meetings.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetings[id]
}

type fakeArtifactStore struct {
	mu          sync.Mutex
	transcribes map[string]types.TranscribeOutput
	diarizes    map[string]types.DiarizeOutput

	merged          []types.MergedSegment
	mergedSpeakers  int
	wroteMerged     bool
	wroteTranscript bool
	analysisResults *analysis.Results
	summaryContent  string
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{
		transcribes: make(map[string]types.TranscribeOutput),
		diarizes:    make(map[string]types.DiarizeOutput),
	}
}

func (a *fakeArtifactStore) ReadTranscribe(path string) (types.TranscribeOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, ok := a.transcribes[path]
	if !ok {
		return types.TranscribeOutput{}, fmt.Errorf("open %s: no such file", path)
	}
	return out, nil
}

func (a *fakeArtifactStore) ReadDiarize(path string) (types.DiarizeOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, ok := a.diarizes[path]
	if !ok {
		return types.DiarizeOutput{}, fmt.Errorf("open %s: no such file", path)
	}
	return out, nil
}

func (a *fakeArtifactStore) WriteMerged(_ int64, _ string, segments []types.MergedSegment, speakerCount int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wroteMerged = true
	a.merged = segments
	a.mergedSpeakers = speakerCount
	return nil
}

func (a *fakeArtifactStore) WriteAnalysis(_ int64, results *analysis.Results) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analysisResults = results
	return nil
}

func (a *fakeArtifactStore) WriteSummary(_ int64, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaryContent = content
	return nil
}

func (a *fakeArtifactStore) WriteTranscriptText(_ int64, _, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wroteTranscript = true
	return nil
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	results *analysis.Results
	called  bool
	gotText string
}

func (f *fakeAnalyzer) Run(_ context.Context, transcript string, _ []types.MergedSegment) *analysis.Results {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.gotText = transcript
	if f.results != nil {
		return f.results
	}
	return &analysis.Results{Errors: make(map[string]string)}
}

func (f *fakeAnalyzer) wasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

func summarized(content string) *analysis.Results {
	return &analysis.Results{
		Summary: &analysis.SummaryResult{Content: content},
		Errors:  make(map[string]string),
	}
}

func testSegments() []types.TranscriptSegment {
	return []types.TranscriptSegment{
		{Start: 0, End: 4, Text: "hello everyone"},
		{Start: 4, End: 9, Text: "let's get started"},
	}
}

func newTestCoordinator(t *testing.T, store *fakeResultStore, records *fakeMeetingStore, artifacts *fakeArtifactStore, pipeline analyzer) *TaskCoordinator {
	t.Helper()
	coord, err := New(store, records, artifacts, pipeline, time.Second, time.Second)
	require.NoError(t, err)
	return coord
}

func TestCheckAndProcessUnknownJob(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	coord := newTestCoordinator(t, store, records, newFakeArtifactStore(), nil)

	assert.False(t, coord.CheckAndProcess(context.Background(), 1))
	assert.Empty(t, store.clearedKeys())
	assert.Equal(t, types.StatusTranscribing, records.get(1).Status)
}

func TestCheckAndProcessWaitsForTranscription(t *testing.T) {
	store := newFakeResultStore()
	coord := newTestCoordinator(t, store, newFakeMeetingStore(1), newFakeArtifactStore(), nil)
	coord.AddTask(1, types.ModeTranscribeOnly, false)

	assert.False(t, coord.CheckAndProcess(context.Background(), 1))
	assert.Equal(t, []int64{1}, coord.Pending())
}

func TestTranscriptionErrorIsFatal(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusError, Error: "model not found"})
	records := newFakeMeetingStore(1)
	coord := newTestCoordinator(t, store, records, newFakeArtifactStore(), nil)
	coord.AddTask(1, types.ModeTranscribeAndSummarize, true)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))

	m := records.get(1)
	assert.Equal(t, types.StatusError, m.Status)
	assert.Equal(t, "transcribe: model not found", m.ErrorMessage)
	assert.Equal(t, types.StatusError, store.status(1).Status)
	// both coordination keys are cleared even though only one was written
	assert.ElementsMatch(t, []string{"1:transcribe", "1:diarize"}, store.clearedKeys())
	assert.Empty(t, coord.Pending())
}

func TestDiarizationIsAwaited(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	coord := newTestCoordinator(t, store, records, newFakeArtifactStore(), nil)
	coord.AddTask(1, types.ModeTranscribeOnly, true)

	// transcription success alone does not advance a diarization job
	assert.False(t, coord.CheckAndProcess(context.Background(), 1))
	assert.Equal(t, []int64{1}, coord.Pending())
	assert.Empty(t, store.clearedKeys())
}

func TestDiarizationAwaitedThenMerged(t *testing.T) {
	store := newFakeResultStore()
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	artifacts.diarizes["d.json"] = types.DiarizeOutput{MeetingID: 1, SpeakerSegments: []types.SpeakerSegment{
		{Start: 0, End: 4, Speaker: "alice"},
		{Start: 4, End: 9, Speaker: "bob"},
	}}
	coord := newTestCoordinator(t, store, records, artifacts, nil)
	coord.AddTask(1, types.ModeTranscribeOnly, true)
	ctx := context.Background()

	// tick 1: neither worker has reported
	assert.False(t, coord.CheckAndProcess(ctx, 1))

	// tick 2: transcription landed, diarization still outstanding
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	assert.False(t, coord.CheckAndProcess(ctx, 1))
	assert.Equal(t, []int64{1}, coord.Pending())
	assert.Empty(t, store.clearedKeys())
	assert.Equal(t, types.StatusTranscribing, records.get(1).Status)

	// tick 3: diarization landed, the job merges and completes
	store.put(1, types.WorkerDiarize, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "d.json"})
	assert.True(t, coord.CheckAndProcess(ctx, 1))

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Contains(t, m.Transcript, "[alice]")
	assert.Contains(t, m.Transcript, "[bob]")
	assert.True(t, artifacts.wroteMerged)
	assert.ElementsMatch(t, []string{"1:transcribe", "1:diarize"}, store.clearedKeys())
	assert.Empty(t, coord.Pending())
}

func TestTranscribeOnlyCompletes(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	pipeline := &fakeAnalyzer{}
	coord := newTestCoordinator(t, store, records, artifacts, pipeline)
	coord.AddTask(1, types.ModeTranscribeOnly, false)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))
	coord.Wait()

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Equal(t, "en", m.Language)
	assert.Contains(t, m.Transcript, "hello everyone")
	assert.NotContains(t, m.Transcript, "Speaker")
	assert.True(t, artifacts.wroteTranscript)
	assert.False(t, artifacts.wroteMerged)
	assert.False(t, pipeline.wasCalled())
	assert.ElementsMatch(t, []string{"1:transcribe", "1:diarize"}, store.clearedKeys())
	assert.Empty(t, coord.Pending())
}

func TestDiarizationMergesSpeakers(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	store.put(1, types.WorkerDiarize, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "d.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	artifacts.diarizes["d.json"] = types.DiarizeOutput{MeetingID: 1, SpeakerSegments: []types.SpeakerSegment{
		{Start: 0, End: 4, Speaker: "alice"},
		{Start: 4, End: 9, Speaker: "bob"},
	}}
	coord := newTestCoordinator(t, store, records, artifacts, nil)
	coord.AddTask(1, types.ModeTranscribeOnly, true)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Contains(t, m.Transcript, "[alice]")
	assert.Contains(t, m.Transcript, "[bob]")
	assert.True(t, artifacts.wroteMerged)
	assert.Equal(t, 2, artifacts.mergedSpeakers)
	assert.ElementsMatch(t, []string{"1:transcribe", "1:diarize"}, store.clearedKeys())
}

func TestDiarizationErrorFallsBackToPlainTranscript(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	store.put(1, types.WorkerDiarize, queue.WorkerResult{Status: types.StatusError, Error: "gpu oom"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	coord := newTestCoordinator(t, store, records, artifacts, nil)
	coord.AddTask(1, types.ModeTranscribeOnly, true)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Empty(t, m.ErrorMessage)
	assert.Contains(t, m.Transcript, "hello everyone")
	assert.NotContains(t, m.Transcript, "[alice]")
	assert.False(t, artifacts.wroteMerged)
}

func TestMissingArtifactIsFatal(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "gone.json"})
	records := newFakeMeetingStore(1)
	coord := newTestCoordinator(t, store, records, newFakeArtifactStore(), nil)
	coord.AddTask(1, types.ModeTranscribeOnly, false)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))

	m := records.get(1)
	assert.Equal(t, types.StatusError, m.Status)
	assert.True(t, strings.HasPrefix(m.ErrorMessage, "coordinator:"))
	assert.Empty(t, coord.Pending())
}

func TestSummarizeModeRunsAnalysis(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	pipeline := &fakeAnalyzer{results: summarized("# Meeting Summary\n\nwe got started")}
	coord := newTestCoordinator(t, store, records, artifacts, pipeline)
	coord.AddTask(1, types.ModeTranscribeAndSummarize, false)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))
	coord.Wait()

	assert.True(t, pipeline.wasCalled())
	// the pipeline sees plain text, not the timestamped rendering
	assert.NotContains(t, pipeline.gotText, "-->")
	assert.Contains(t, pipeline.gotText, "hello everyone")

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Equal(t, "# Meeting Summary\n\nwe got started", m.Summary)
	assert.Equal(t, "# Meeting Summary\n\nwe got started", artifacts.summaryContent)
	require.NotNil(t, artifacts.analysisResults)
	assert.Equal(t, "analysis complete", store.status(1).Message)
}

func TestAnalysisWithoutSummaryFailsRecord(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	pipeline := &fakeAnalyzer{} // returns results with no summary
	coord := newTestCoordinator(t, store, records, artifacts, pipeline)
	coord.AddTask(1, types.ModeTranscribeAndSummarize, false)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))
	coord.Wait()

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Equal(t, "summary generation failed: no content", m.ErrorMessage)
	assert.Contains(t, m.Transcript, "hello everyone") // transcript survives the failed summary
}

func TestNilPipelineFailsSummaryOnly(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	coord := newTestCoordinator(t, store, records, artifacts, nil)
	coord.AddTask(1, types.ModeTranscribeAndSummarize, false)

	assert.True(t, coord.CheckAndProcess(context.Background(), 1))
	coord.Wait()

	m := records.get(1)
	assert.Equal(t, types.StatusCompleted, m.Status)
	assert.Equal(t, "summary generation failed: analysis pipeline not configured", m.ErrorMessage)
}

func TestRunProcessesPendingJobs(t *testing.T) {
	store := newFakeResultStore()
	store.put(1, types.WorkerTranscribe, queue.WorkerResult{Status: types.StatusCompleted, Filepath: "t.json"})
	records := newFakeMeetingStore(1)
	artifacts := newFakeArtifactStore()
	artifacts.transcribes["t.json"] = types.TranscribeOutput{MeetingID: 1, Language: "en", Segments: testSegments()}
	coord, err := New(store, records, artifacts, nil, 10*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	coord.AddTask(1, types.ModeTranscribeOnly, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return records.get(1).Status == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}
	assert.Empty(t, coord.Pending())
}

func TestNewValidatesCollaborators(t *testing.T) {
	_, err := New(nil, newFakeMeetingStore(), newFakeArtifactStore(), nil, 0, 0)
	assert.Error(t, err)
	_, err = New(newFakeResultStore(), nil, newFakeArtifactStore(), nil, 0, 0)
	assert.Error(t, err)
	_, err = New(newFakeResultStore(), newFakeMeetingStore(), nil, nil, 0, 0)
	assert.Error(t, err)
}
