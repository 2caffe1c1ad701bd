package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"meetbrief/analysis"
	"meetbrief/config"
	"meetbrief/coordinator"
	"meetbrief/llm"
	"meetbrief/meetings"
	"meetbrief/output"
	"meetbrief/queue"
	"meetbrief/stt"
	"meetbrief/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	db, err := sql.Open("sqlite3", "file:"+cfg.DatabasePath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	repo := meetings.NewSQLiteRepo(db)
	if err := repo.InitSchema(context.Background()); err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connecting to redis: %v", err)
	}
	defer q.Close()
	if err := q.Ping(context.Background()); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}

	artifacts, err := output.NewArtifacts(cfg.ResultsDir)
	if err != nil {
		log.Fatalf("preparing results dir: %v", err)
	}

	// without an API key jobs still transcribe; summaries fail softly
	var coord *coordinator.TaskCoordinator
	if cfg.DeepSeekAPIKey != "" {
		client, err := llm.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.LLMModel)
		if err != nil {
			log.Fatalf("building llm client: %v", err)
		}
		coord, err = coordinator.New(q, repo, artifacts, analysis.NewFullPipeline(client), cfg.PollInterval, cfg.ErrorBackoff)
		if err != nil {
			log.Fatalf("building coordinator: %v", err)
		}
	} else {
		log.Println("DEEPSEEK_API_KEY not set, analysis pipeline disabled")
		var err error
		coord, err = coordinator.New(q, repo, artifacts, nil, cfg.PollInterval, cfg.ErrorBackoff)
		if err != nil {
			log.Fatalf("building coordinator: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go coord.Run(ctx)

	if cfg.EmbeddedWorker {
		w, err := worker.NewTranscribeWorker(q, repo, artifacts, stt.WhisperCLI{})
		if err != nil {
			log.Fatalf("building worker: %v", err)
		}
		w.Start()
		defer w.Stop()
		log.Println("embedded transcription worker started")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadSize),
	})
	srv := &server{cfg: cfg, repo: repo, queue: q, coord: coord}
	srv.routes(app)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("http listen and serve: %v", err)
		}
	}()
	log.Printf("meetbrief listening on %s", cfg.ListenAddr)

	<-ctx.Done()
	log.Println("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Printf("shutdown server: %v", err)
	}
	coord.Wait()
}
