package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"meetbrief/config"
	"meetbrief/coordinator"
	"meetbrief/meetings"
	"meetbrief/queue"
	"meetbrief/types"
)

type server struct {
	cfg   *config.Config
	repo  *meetings.SQLiteRepo
	queue *queue.Queue
	coord *coordinator.TaskCoordinator
}

type transcribeOptions struct {
	Mode        string `json:"mode"`
	Diarization bool   `json:"diarization"`
	NumSpeakers int    `json:"num_speakers"`
}

func (s *server) routes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "meetbrief"})
	})

	api := app.Group("/api/meetings")
	api.Post("/upload", s.handleUpload)
	api.Get("", s.handleList)
	api.Get("/:id", s.handleGet)
	api.Get("/:id/status", s.handleStatus)
	api.Get("/:id/export", s.handleExport)
	api.Post("/:id/transcribe", s.handleTranscribe)
	api.Post("/:id/summarize", s.handleSummarize)
	api.Put("/:id/transcript", s.handleUpdateTranscript)
	api.Put("/:id/title", s.handleUpdateTitle)
	api.Delete("/:id", s.handleDelete)

	api.Use("/:id/watch", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/:id/watch", websocket.New(s.handleWatch))
}

func (s *server) handleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`file` field is required"})
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	if !allowedExtension(ext, s.cfg.AllowedExtensions) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("unsupported file format, allowed: %s", strings.Join(s.cfg.AllowedExtensions, ", ")),
		})
	}
	if file.Size > s.cfg.MaxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("file too large, max %dMB", s.cfg.MaxUploadSize/1024/1024),
		})
	}

	uniqueName := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(file.Filename))
	destination := filepath.Join(s.cfg.UploadsDir, uniqueName)
	if err := c.SaveFile(file, destination); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store upload"})
	}

	ctx := c.Context()
	title := strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename))
	meeting, err := s.repo.Create(ctx, title, file.Filename, destination, probeDuration(ctx, destination))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create meeting"})
	}

	if err := s.queue.EnqueueTranscribe(ctx, meeting.ID, types.ModeTranscribeAndSummarize, false, 0); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue task"})
	}
	s.coord.AddTask(meeting.ID, types.ModeTranscribeAndSummarize, false)

	return c.JSON(meeting)
}

func (s *server) handleList(c *fiber.Ctx) error {
	skip := c.QueryInt("skip", 0)
	limit := c.QueryInt("limit", 50)
	list, err := s.repo.List(c.Context(), skip, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list meetings"})
	}
	if list == nil {
		list = []meetings.Meeting{}
	}
	return c.JSON(list)
}

func (s *server) handleGet(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	return c.JSON(meeting)
}

func (s *server) handleStatus(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	queueStatus, err := s.queue.TaskStatus(c.Context(), meeting.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read queue status"})
	}
	return c.JSON(fiber.Map{
		"id":           meeting.ID,
		"status":       meeting.Status,
		"queue_status": queueStatus,
	})
}

func (s *server) handleTranscribe(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	if meeting.Status == types.StatusTranscribing || meeting.Status == types.StatusSummarizing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "meeting is already being processed"})
	}

	opts := transcribeOptions{Mode: types.ModeTranscribeAndSummarize}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
	}
	if opts.Mode != types.ModeTranscribeOnly && opts.Mode != types.ModeTranscribeAndSummarize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid mode"})
	}

	ctx := c.Context()
	if err := s.repo.ResetForTranscribe(ctx, meeting.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to reset meeting"})
	}
	if err := s.queue.EnqueueTranscribe(ctx, meeting.ID, opts.Mode, opts.Diarization, opts.NumSpeakers); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue task"})
	}
	if opts.Diarization {
		if err := s.queue.EnqueueDiarize(ctx, meeting.ID, meeting.Filepath, opts.NumSpeakers); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue diarize task"})
		}
	}
	s.coord.AddTask(meeting.ID, opts.Mode, opts.Diarization)

	return c.JSON(fiber.Map{
		"message":      "queued for processing",
		"mode":         opts.Mode,
		"diarization":  opts.Diarization,
		"num_speakers": opts.NumSpeakers,
	})
}

func (s *server) handleSummarize(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	if meeting.Transcript == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no transcript yet, run transcription first"})
	}
	if meeting.Status == types.StatusSummarizing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "summary already in progress"})
	}

	if err := s.repo.SetStatus(c.Context(), meeting.ID, types.StatusSummarizing); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update status"})
	}
	s.coord.StartAnalysis(meeting.ID, meeting.Transcript, nil)

	return c.JSON(fiber.Map{"message": "summary generation started"})
}

// handleExport serves the meeting as a downloadable markdown or plain-text
// document built from the record's transcript and summary.
func (s *server) handleExport(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}

	var content, filename, mediaType string
	if c.Query("format", "markdown") == "markdown" {
		content = generateMarkdownExport(meeting)
		filename = meeting.Title + ".md"
		mediaType = "text/markdown"
	} else {
		content = generateTxtExport(meeting)
		filename = meeting.Title + ".txt"
		mediaType = "text/plain"
	}

	c.Set(fiber.HeaderContentType, mediaType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.SendString(content)
}

func (s *server) handleUpdateTranscript(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	var body struct {
		Transcript string `json:"transcript"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if err := s.repo.UpdateTranscript(c.Context(), meeting.ID, body.Transcript); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update transcript"})
	}
	updated, err := s.repo.Get(c.Context(), meeting.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load meeting"})
	}
	return c.JSON(updated)
}

func (s *server) handleUpdateTitle(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if strings.TrimSpace(body.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title must not be empty"})
	}
	if err := s.repo.UpdateTitle(c.Context(), meeting.ID, body.Title); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update title"})
	}
	updated, err := s.repo.Get(c.Context(), meeting.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load meeting"})
	}
	return c.JSON(updated)
}

func (s *server) handleDelete(c *fiber.Ctx) error {
	meeting, err := s.getMeeting(c)
	if err != nil {
		return err
	}
	if meeting.Filepath != "" {
		if err := os.Remove(meeting.Filepath); err != nil && !os.IsNotExist(err) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove audio file"})
		}
	}
	if err := s.repo.Delete(c.Context(), meeting.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete meeting"})
	}
	return c.JSON(fiber.Map{"message": "meeting deleted"})
}

// watchTimeout bounds how long a single watch connection may poll a job that
// never reaches a terminal state.
const watchTimeout = 30 * time.Minute

// statusSink is the websocket surface the watch loop writes to.
type statusSink interface {
	WriteJSON(v any) error
}

// handleWatch streams status changes over a websocket until the job reaches a
// terminal state, the client goes away, or the watch times out.
func (s *server) handleWatch(ws *websocket.Conn) {
	defer ws.Close()

	id, err := strconv.ParseInt(ws.Params("id"), 10, 64)
	if err != nil {
		_ = ws.WriteJSON(fiber.Map{"error": "invalid meeting id"})
		return
	}

	// the read pump exists only to notice a client that disconnects without a
	// pending status change
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.watch(ws, id, gone, watchTimeout)
}

// watch polls the record and status hash every second and pushes changes to
// sink. It returns on a terminal status, a write failure, a closed gone
// channel, or once timeout elapses.
func (s *server) watch(sink statusSink, id int64, gone <-chan struct{}, timeout time.Duration) {
	ctx := context.Background()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := ""
	for {
		meeting, err := s.repo.Get(ctx, id)
		if err != nil {
			_ = sink.WriteJSON(fiber.Map{"error": "meeting not found"})
			return
		}
		queueStatus, _ := s.queue.TaskStatus(ctx, id)

		message := ""
		if queueStatus != nil {
			message = queueStatus.Message
		}
		key := meeting.Status + "|" + message
		if key != last {
			last = key
			if err := sink.WriteJSON(fiber.Map{
				"id":      id,
				"status":  meeting.Status,
				"message": message,
			}); err != nil {
				return
			}
		}

		if meeting.Status == types.StatusCompleted || meeting.Status == types.StatusError {
			return
		}

		select {
		case <-gone:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

// getMeeting resolves the :id param. The returned error is a *fiber.Error the
// handler passes straight back for the framework to render.
func (s *server) getMeeting(c *fiber.Ctx) (meetings.Meeting, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return meetings.Meeting{}, fiber.NewError(fiber.StatusBadRequest, "invalid meeting id")
	}
	meeting, err := s.repo.Get(c.Context(), id)
	if errors.Is(err, meetings.ErrNotFound) {
		return meetings.Meeting{}, fiber.NewError(fiber.StatusNotFound, "meeting not found")
	}
	if err != nil {
		return meetings.Meeting{}, fiber.NewError(fiber.StatusInternalServerError, "failed to load meeting")
	}
	return meeting, nil
}

func allowedExtension(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// probeDuration asks ffprobe for the audio length; zero when unavailable.
func probeDuration(ctx context.Context, path string) float64 {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return d
}
