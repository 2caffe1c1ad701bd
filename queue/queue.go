package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meetbrief/types"
)

// Redis key layout shared with the worker processes.
const (
	taskQueue    = "meetbrief:tasks"
	diarizeQueue = "meetbrief:diarize"
	resultPrefix = "meetbrief:result:"
	statusPrefix = "meetbrief:status:"
)

// resultTTL bounds how long worker results and status hashes live without a
// consumer. Matches the workers' side of the protocol.
const resultTTL = time.Hour

// Task is one transcription job pushed to the worker queue.
type Task struct {
	Type        string `json:"type"`
	MeetingID   int64  `json:"meeting_id"`
	Mode        string `json:"mode"`
	Diarization bool   `json:"diarization"`
	NumSpeakers int    `json:"num_speakers,omitempty"`
}

// DiarizeTask is one speaker-diarization job for the diarizer worker.
type DiarizeTask struct {
	MeetingID   int64  `json:"meeting_id"`
	Filepath    string `json:"filepath"`
	NumSpeakers int    `json:"num_speakers,omitempty"`
}

// WorkerResult is what a worker leaves behind for the coordinator: either a
// pointer to a result artifact or an error message.
type WorkerResult struct {
	Status   string `json:"status"` // "completed" or "error"
	Filepath string `json:"filepath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TaskStatus is the progress entry exposed to the status-query surface.
type TaskStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Queue is the Redis-backed coordination channel between the API process and
// the worker processes. Worker results are best-effort and TTL-bounded; the
// coordinator is assumed to be the single reader that clears them.
type Queue struct {
	rdb *redis.Client
}

// New builds a Queue from a Redis URL (redis://host:port/db).
func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Queue{rdb: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Close releases the underlying Redis connection pool.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Ping checks connectivity at startup.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// EnqueueTranscribe pushes a transcription task and seeds the status hash.
func (q *Queue) EnqueueTranscribe(ctx context.Context, meetingID int64, mode string, diarization bool, numSpeakers int) error {
	task := Task{
		Type:        "transcribe",
		MeetingID:   meetingID,
		Mode:        mode,
		Diarization: diarization,
		NumSpeakers: numSpeakers,
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	if err := q.rdb.RPush(ctx, taskQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing transcribe task: %w", err)
	}
	return q.SetTaskStatus(ctx, meetingID, types.StatusQueued, "")
}

// EnqueueDiarize pushes a diarization task for the diarizer worker.
func (q *Queue) EnqueueDiarize(ctx context.Context, meetingID int64, filepath string, numSpeakers int) error {
	task := DiarizeTask{MeetingID: meetingID, Filepath: filepath, NumSpeakers: numSpeakers}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling diarize task: %w", err)
	}
	if err := q.rdb.RPush(ctx, diarizeQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing diarize task: %w", err)
	}
	return nil
}

// DequeueTask blocks up to timeout for the next transcription task. Returns
// (nil, nil) when the wait times out.
func (q *Queue) DequeueTask(ctx context.Context, timeout time.Duration) (*Task, error) {
	vals, err := q.rdb.BLPop(ctx, timeout, taskQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeueing task: %w", err)
	}
	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshaling task: %w", err)
	}
	return &task, nil
}

// DequeueDiarize blocks up to timeout for the next diarization task.
func (q *Queue) DequeueDiarize(ctx context.Context, timeout time.Duration) (*DiarizeTask, error) {
	vals, err := q.rdb.BLPop(ctx, timeout, diarizeQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeueing diarize task: %w", err)
	}
	var task DiarizeTask
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshaling diarize task: %w", err)
	}
	return &task, nil
}

// SaveWorkerResult records a worker's outcome for one (meeting, kind) pair.
// Written once by the producing worker, read and cleared by the coordinator.
func (q *Queue) SaveWorkerResult(ctx context.Context, meetingID int64, kind, status, filepath, errMsg string) error {
	result := WorkerResult{Status: status, Filepath: filepath, Error: errMsg}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling worker result: %w", err)
	}
	key := resultKey(meetingID, kind)
	if err := q.rdb.Set(ctx, key, payload, resultTTL).Err(); err != nil {
		return fmt.Errorf("saving worker result %s: %w", key, err)
	}
	return nil
}

// WorkerResult fetches a worker's outcome. Returns (nil, nil) when no result
// has been written yet (or it expired).
func (q *Queue) WorkerResult(ctx context.Context, meetingID int64, kind string) (*WorkerResult, error) {
	raw, err := q.rdb.Get(ctx, resultKey(meetingID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading worker result: %w", err)
	}
	var result WorkerResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling worker result: %w", err)
	}
	return &result, nil
}

// ClearWorkerResult deletes a result key so it can never be consumed twice.
func (q *Queue) ClearWorkerResult(ctx context.Context, meetingID int64, kind string) error {
	if err := q.rdb.Del(ctx, resultKey(meetingID, kind)).Err(); err != nil {
		return fmt.Errorf("clearing worker result: %w", err)
	}
	return nil
}

// SetTaskStatus overwrites the progress entry for a meeting.
func (q *Queue) SetTaskStatus(ctx context.Context, meetingID int64, status, message string) error {
	key := statusKey(meetingID)
	if err := q.rdb.HSet(ctx, key, "status", status, "message", message).Err(); err != nil {
		return fmt.Errorf("setting task status: %w", err)
	}
	if err := q.rdb.Expire(ctx, key, resultTTL).Err(); err != nil {
		return fmt.Errorf("expiring task status: %w", err)
	}
	return nil
}

// TaskStatus reads the progress entry. Returns (nil, nil) when absent.
func (q *Queue) TaskStatus(ctx context.Context, meetingID int64) (*TaskStatus, error) {
	vals, err := q.rdb.HGetAll(ctx, statusKey(meetingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading task status: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return &TaskStatus{Status: vals["status"], Message: vals["message"]}, nil
}

func resultKey(meetingID int64, kind string) string {
	return fmt.Sprintf("%s%d:%s", resultPrefix, meetingID, kind)
}

func statusKey(meetingID int64) string {
	return fmt.Sprintf("%s%d", statusPrefix, meetingID)
}
