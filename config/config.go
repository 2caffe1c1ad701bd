package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries all runtime settings. Values come from the environment;
// main loads a .env file first via godotenv.
type Config struct {
	ListenAddr   string
	RedisURL     string
	DatabasePath string

	DataDir    string
	UploadsDir string
	ResultsDir string

	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	LLMModel        string

	MaxUploadSize     int64
	AllowedExtensions []string

	PollInterval time.Duration
	ErrorBackoff time.Duration

	// EmbeddedWorker runs the transcription worker inside this process instead
	// of a separate one. Meant for development setups.
	EmbeddedWorker bool
}

// Load reads the configuration from the environment and makes sure the data
// directories exist.
func Load() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")

	cfg := &Config{
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		RedisURL:     getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabasePath: getenv("DATABASE_PATH", filepath.Join(dataDir, "meetbrief.db")),

		DataDir:    dataDir,
		UploadsDir: filepath.Join(dataDir, "uploads"),
		ResultsDir: filepath.Join(dataDir, "results"),

		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL: getenv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		LLMModel:        getenv("LLM_MODEL", "deepseek-chat"),

		MaxUploadSize:     getenvInt64("MAX_UPLOAD_SIZE", 524288000), // 500MB
		AllowedExtensions: []string{"mp3", "wav", "m4a", "ogg", "webm", "aac", "flac", "wma"},

		PollInterval: getenvDuration("POLL_INTERVAL", 2*time.Second),
		ErrorBackoff: getenvDuration("ERROR_BACKOFF", 5*time.Second),

		EmbeddedWorker: os.Getenv("WORKER_EMBEDDED") == "1",
	}

	for _, dir := range []string{cfg.UploadsDir, cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
