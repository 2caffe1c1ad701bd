// Package worker implements the queue-consuming transcription worker. It runs
// as its own process (or embedded for development) and communicates with the
// coordinator only through the shared queue and the results directory.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"meetbrief/meetings"
	"meetbrief/output"
	"meetbrief/queue"
	"meetbrief/stt"
	"meetbrief/types"
)

// TranscribeWorker pulls transcription tasks off the queue, runs the engine,
// writes the result artifact, and reports through the worker-result store.
type TranscribeWorker struct {
	queue     *queue.Queue
	records   *meetings.SQLiteRepo
	artifacts *output.Artifacts
	engine    stt.Engine

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTranscribeWorker validates collaborators and builds a worker.
func NewTranscribeWorker(q *queue.Queue, records *meetings.SQLiteRepo, artifacts *output.Artifacts, engine stt.Engine) (*TranscribeWorker, error) {
	if q == nil {
		return nil, fmt.Errorf("worker: queue is required")
	}
	if records == nil {
		return nil, fmt.Errorf("worker: meeting store is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("worker: artifact store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("worker: transcription engine is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TranscribeWorker{
		queue:     q,
		records:   records,
		artifacts: artifacts,
		engine:    engine,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Start begins the worker's processing loop in its own goroutine.
func (w *TranscribeWorker) Start() {
	go w.loop()
}

// Stop terminates the processing loop and waits for the in-flight task.
func (w *TranscribeWorker) Stop() {
	w.cancel()
	<-w.done
}

func (w *TranscribeWorker) loop() {
	defer close(w.done)
	log.Printf("[Worker] transcription worker started")
	for {
		select {
		case <-w.ctx.Done():
			log.Printf("[Worker] shutting down")
			return
		default:
		}

		task, err := w.queue.DequeueTask(w.ctx, 2*time.Second)
		if err != nil {
			if w.ctx.Err() != nil {
				log.Printf("[Worker] shutting down")
				return
			}
			log.Printf("[Worker] dequeue failed: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if task == nil {
			continue
		}
		w.processTask(task)
	}
}

func (w *TranscribeWorker) processTask(task *queue.Task) {
	if task.Type != types.WorkerTranscribe {
		log.Printf("[Worker] ignoring task type %q", task.Type)
		return
	}
	meetingID := task.MeetingID
	log.Printf("[Worker] processing meeting %d", meetingID)

	if err := w.transcribe(meetingID); err != nil {
		log.Printf("[Worker] meeting %d failed: %v", meetingID, err)
		if serr := w.queue.SaveWorkerResult(w.ctx, meetingID, types.WorkerTranscribe, types.StatusError, "", err.Error()); serr != nil {
			log.Printf("[Worker] meeting %d: saving error result: %v", meetingID, serr)
		}
		if serr := w.queue.SetTaskStatus(w.ctx, meetingID, types.StatusError, err.Error()); serr != nil {
			log.Printf("[Worker] meeting %d: updating status: %v", meetingID, serr)
		}
	}
}

func (w *TranscribeWorker) transcribe(meetingID int64) error {
	meeting, err := w.records.Get(w.ctx, meetingID)
	if err != nil {
		return fmt.Errorf("looking up meeting: %w", err)
	}

	if err := w.queue.SetTaskStatus(w.ctx, meetingID, types.StatusTranscribing, "transcribing"); err != nil {
		log.Printf("[Worker] meeting %d: updating status: %v", meetingID, err)
	}

	result, err := w.engine.Transcribe(w.ctx, meeting.Filepath)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}
	result.MeetingID = meetingID

	path, err := w.artifacts.WriteTranscribe(meetingID, result)
	if err != nil {
		return fmt.Errorf("writing result artifact: %w", err)
	}

	if err := w.queue.SaveWorkerResult(w.ctx, meetingID, types.WorkerTranscribe, types.StatusCompleted, path, ""); err != nil {
		return fmt.Errorf("saving worker result: %w", err)
	}
	if err := w.queue.SetTaskStatus(w.ctx, meetingID, types.StatusTranscribeDone, "transcription done, awaiting processing"); err != nil {
		log.Printf("[Worker] meeting %d: updating status: %v", meetingID, err)
	}

	log.Printf("[Worker] meeting %d transcribed: %s", meetingID, path)
	return nil
}
