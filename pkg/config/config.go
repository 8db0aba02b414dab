package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	JwtSecret   string
	CORSOrigins []string
	LogLevel    string

	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsBaseURL string
	ElevenLabsModel   string
	TTSTimeout        time.Duration
	VoiceTablePath    string

	ClipStoragePath string
	FFmpegPath      string
	FFprobePath     string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerDrainTimeout time.Duration
	ClipStaleAfter     time.Duration
	ClipMaxClaims      int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GCSBucket           string
	GCSBackgroundPrefix string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
	OTelServiceName string
}

// LoadConfig reads .env (if any) and the process environment. Missing
// required keys are fatal.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	cfg, err := FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// FromEnv builds a Config from the environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Host:        envOr("HOST", "127.0.0.1"),
		Port:        envOr("PORT", "8080"),
		JwtSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(envOr("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-1.5-flash"),

		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsBaseURL: strings.TrimRight(envOr("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"), "/"),
		ElevenLabsModel:   envOr("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		VoiceTablePath:    os.Getenv("VOICE_TABLE_PATH"),

		ClipStoragePath: envOr("CLIP_STORAGE_PATH", "./clips"),
		FFmpegPath:      envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     envOr("FFPROBE_PATH", "ffprobe"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		GCSBucket:           os.Getenv("GCS_BUCKET"),
		GCSBackgroundPrefix: envOr("GCS_BACKGROUND_PREFIX", "backgrounds/"),

		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelServiceName: envOr("OTEL_SERVICE_NAME", "storyspark-api"),
	}

	var err error
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TTSTimeout, err = envDuration("TTS_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval, err = envDuration("WORKER_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerDrainTimeout, err = envDuration("WORKER_DRAIN_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ClipStaleAfter, err = envDuration("CLIP_STALE_AFTER", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 2); err != nil {
		return nil, err
	}
	if cfg.ClipMaxClaims, err = envInt("CLIP_MAX_CLAIMS", 3); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.OTelSampleRatio, err = envFloat("OTEL_SAMPLE_RATIO", 1.0); err != nil {
		return nil, err
	}
	cfg.OTelEnabled = envBool("OTEL_ENABLED")

	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set. This is critical for authentication")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is not set")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.ClipMaxClaims < 1 {
		cfg.ClipMaxClaims = 1
	}
	if cfg.OTelSampleRatio < 0 || cfg.OTelSampleRatio > 1 {
		cfg.OTelSampleRatio = 1.0
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
