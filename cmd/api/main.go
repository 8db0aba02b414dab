package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/audio"
	"github.com/ASHISH26940/storyspark-api/pkg/blobstore"
	"github.com/ASHISH26940/storyspark-api/pkg/config"
	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/db/queries"
	"github.com/ASHISH26940/storyspark-api/pkg/events"
	"github.com/ASHISH26940/storyspark-api/pkg/handlers"
	"github.com/ASHISH26940/storyspark-api/pkg/llm"
	"github.com/ASHISH26940/storyspark-api/pkg/pipeline"
	"github.com/ASHISH26940/storyspark-api/pkg/safety"
	"github.com/ASHISH26940/storyspark-api/pkg/script"
	"github.com/ASHISH26940/storyspark-api/pkg/services"
	"github.com/ASHISH26940/storyspark-api/pkg/tracing"
	"github.com/ASHISH26940/storyspark-api/pkg/tts"
	"github.com/ASHISH26940/storyspark-api/pkg/worker"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetOutput(gin.DefaultWriter)
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("Starting StorySpark API...")

	cfg := config.LoadConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Warnf("Tracing disabled: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warnf("Tracing shutdown: %v", err)
		}
	}()

	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	catalog, err := db.LoadSeedCatalog()
	if err != nil {
		log.Fatalf("Failed to load seed catalog: %v", err)
	}
	if err := queries.SeedCatalog(ctx, catalog); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	files, err := blobstore.NewFileStore(cfg.ClipStoragePath)
	if err != nil {
		log.Fatalf("Failed to open clip storage: %v", err)
	}
	if cfg.GCSBucket != "" {
		syncBackgrounds(ctx, files, cfg)
	}

	var bus *events.RedisBus
	if cfg.RedisAddr != "" {
		bus, err = events.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warnf("Clip events disabled, Redis unavailable: %v", err)
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	gemini, err := llm.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer gemini.Close()

	voices, err := tts.LoadVoiceTable(cfg.VoiceTablePath, cfg.ElevenLabsVoiceID)
	if err != nil {
		log.Fatalf("Failed to load voice table: %v", err)
	}
	ff := audio.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	speech := tts.NewElevenLabs(tts.ElevenLabsConfig{
		APIKey:  cfg.ElevenLabsAPIKey,
		BaseURL: cfg.ElevenLabsBaseURL,
		Model:   cfg.ElevenLabsModel,
		Timeout: cfg.TTSTimeout,
	}, voices, files, ff)

	store := queries.Store{}
	opts := []pipeline.Option{}
	if bus != nil {
		opts = append(opts, pipeline.WithNotifier(bus))
	}
	orchestrator := pipeline.New(
		store,
		script.NewGenerator(gemini),
		safety.NewReviewer(gemini),
		speech,
		audio.NewMixer(ff, files),
		opts...,
	)

	pool := worker.NewPool(store, orchestrator, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		StaleAfter:   cfg.ClipStaleAfter,
		MaxClaims:    cfg.ClipMaxClaims,
	})

	apiHandlers := handlers.NewHandlers(cfg, store, services.NewTokenService(cfg.JwtSecret, 24*time.Hour), orchestrator, pool, files)
	apiHandlers.DB = db.DB
	if bus != nil {
		apiHandlers.Events = bus
	}

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: apiHandlers.NewRouter(),
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := pool.Run(workerCtx); err != nil {
			log.Errorf("Worker pool stopped with error: %v", err)
		}
	}()

	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-time.After(cfg.WorkerDrainTimeout):
		log.Warnf("Clip workers still running after %s, exiting anyway", cfg.WorkerDrainTimeout)
	}
	log.Info("Server exited gracefully.")
}

// syncBackgrounds mirrors the background-track library from GCS. Failures
// leave whatever tracks are already on disk in place.
func syncBackgrounds(ctx context.Context, files *blobstore.FileStore, cfg *config.Config) {
	bucket, err := blobstore.NewGCSBucket(ctx, cfg.GCSBucket)
	if err != nil {
		log.Warnf("Background sync skipped: %v", err)
		return
	}
	defer bucket.Close()

	syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if _, err := files.SyncBackgrounds(syncCtx, bucket, cfg.GCSBackgroundPrefix); err != nil {
		log.Warnf("Background sync failed: %v", err)
	}
}
