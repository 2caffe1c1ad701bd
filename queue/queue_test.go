package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetbrief/types"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestEnqueueDequeueTranscribe(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueTranscribe(ctx, 7, types.ModeTranscribeAndSummarize, true, 3))

	task, err := q.DequeueTask(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "transcribe", task.Type)
	assert.Equal(t, int64(7), task.MeetingID)
	assert.Equal(t, types.ModeTranscribeAndSummarize, task.Mode)
	assert.True(t, task.Diarization)
	assert.Equal(t, 3, task.NumSpeakers)

	// enqueue also seeds the status hash
	status, err := q.TaskStatus(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.StatusQueued, status.Status)
}

func TestEnqueueDequeueDiarize(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueDiarize(ctx, 9, "/data/uploads/x.wav", 0))

	task, err := q.DequeueDiarize(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(9), task.MeetingID)
	assert.Equal(t, "/data/uploads/x.wav", task.Filepath)
}

func TestWorkerResultLifecycle(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	// absent before any write
	result, err := q.WorkerResult(ctx, 5, types.WorkerTranscribe)
	require.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, q.SaveWorkerResult(ctx, 5, types.WorkerTranscribe, types.StatusCompleted, "/results/5_transcribe.json", ""))

	result, err = q.WorkerResult(ctx, 5, types.WorkerTranscribe)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, "/results/5_transcribe.json", result.Filepath)

	// bounded lifetime
	assert.Positive(t, mr.TTL("meetbrief:result:5:transcribe"))

	require.NoError(t, q.ClearWorkerResult(ctx, 5, types.WorkerTranscribe))
	result, err = q.WorkerResult(ctx, 5, types.WorkerTranscribe)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestWorkerResultError(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.SaveWorkerResult(ctx, 6, types.WorkerDiarize, types.StatusError, "", "model blew up"))

	result, err := q.WorkerResult(ctx, 6, types.WorkerDiarize)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, types.StatusError, result.Status)
	assert.Equal(t, "model blew up", result.Error)
}

func TestTaskStatusOverwriteAndTTL(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.SetTaskStatus(ctx, 3, types.StatusTranscribing, "transcribing"))
	require.NoError(t, q.SetTaskStatus(ctx, 3, types.StatusSummarizing, "analyzing meeting content"))

	status, err := q.TaskStatus(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.StatusSummarizing, status.Status)
	assert.Equal(t, "analyzing meeting content", status.Message)
	assert.Positive(t, mr.TTL("meetbrief:status:3"))

	missing, err := q.TaskStatus(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDequeueTimeout(t *testing.T) {
	q, _ := newTestQueue(t)

	task, err := q.DequeueTask(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}
