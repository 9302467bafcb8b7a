// Command worker runs the extraction core as a long-lived async worker
// pool: it drains an asynq queue, running every enqueued document through
// the same orchestrator the in-process batch runner and CLI use.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/fileprocess-worker/internal/batch"
	"github.com/adverant/nexus/fileprocess-worker/internal/cache"
	"github.com/adverant/nexus/fileprocess-worker/internal/config"
	"github.com/adverant/nexus/fileprocess-worker/internal/format"
	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
	"github.com/adverant/nexus/fileprocess-worker/internal/ocr"
	"github.com/adverant/nexus/fileprocess-worker/internal/pipeline"
	"github.com/adverant/nexus/fileprocess-worker/internal/storage"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using system environment variables")
	}

	logger := logging.NewLogger("worker")
	procCfg := config.LoadProcessConfig()

	logger.Info("starting extraction worker",
		"cache_dir", procCfg.CacheDir,
		"cache_max_size_mb", procCfg.CacheMaxSizeMB,
		"cache_max_age_days", procCfg.CacheMaxAgeDays,
	)

	caches, err := cache.NewRegistry(procCfg.CacheDir, procCfg.CacheMaxSizeMB, procCfg.CacheMaxAgeDays, logger)
	if err != nil {
		log.Fatalf("failed to initialize cache registry: %v", err)
	}

	redisURL := os.Getenv("KREUZBERG_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	if opts, err := redis.ParseURL(redisURL); err != nil {
		logger.Warn("could not parse redis url, running without cross-replica cache coordination", "err", err)
	} else {
		caches.Lock = cache.NewDistributedLock(redis.NewClient(opts), logger)
	}

	registry := format.NewDefaultRegistry()
	dispatcher := format.NewDispatcher(registry, caches.MIME)
	ocrBackend := ocr.NewTesseractBackend(caches.OCR)

	orchestrator := pipeline.New(caches, dispatcher, ocrBackend, pipeline.Features{}, logger)

	if databaseURL := os.Getenv("KREUZBERG_DATABASE_URL"); databaseURL != "" {
		ledger, err := storage.NewLedger(databaseURL)
		if err != nil {
			logger.Warn("failed to connect extraction ledger, running without audit persistence", "err", err)
		} else {
			orchestrator.Ledger = ledger
			defer ledger.Close()
		}
	}

	concurrency := 10
	if v := os.Getenv("KREUZBERG_WORKER_CONCURRENCY"); v != "" {
		if n, ok := parsePositiveInt(v); ok {
			concurrency = n
		}
	}

	// Discover kreuzberg.toml / [tool.kreuzberg] once at startup from the
	// process's own working directory; this becomes the pool-wide default
	// for tasks enqueued without their own explicit config (spec §6
	// discover_config).
	defaultCfg := value.Default()
	if discovered, err := config.DiscoverConfig(""); err != nil {
		logger.Warn("failed to discover extraction config, using built-in defaults", "err", err)
	} else if discovered != nil {
		defaultCfg = *discovered
	}

	pool, err := batch.NewAsyncWorkerPool(batch.WorkerPoolConfig{
		RedisURL:      redisURL,
		QueueName:     "extract",
		Concurrency:   concurrency,
		DefaultConfig: defaultCfg,
	}, orchestrator, logger)
	if err != nil {
		log.Fatalf("failed to initialize async worker pool: %v", err)
	}

	if err := pool.Start(); err != nil {
		log.Fatalf("failed to start async worker pool: %v", err)
	}
	logger.Info("extraction worker ready", "queue", "extract", "concurrency", concurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("received signal, shutting down", "signal", sig.String())

	if err := pool.Stop(); err != nil {
		logger.Error("error stopping async worker pool", "err", err)
	}
	logger.Info("shutdown complete")
}

func parsePositiveInt(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, n > 0
}
