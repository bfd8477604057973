package main

import (
	"context"
	"log"
	"time"

	"arxiv-fulltext-service/internal/config"
	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/queue"
	"arxiv-fulltext-service/internal/store"
	"arxiv-fulltext-service/internal/telemetry"
	"arxiv-fulltext-service/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg, "fulltext-worker")

	shutdownTracer, err := telemetry.InitTracer("fulltext-worker", cfg.OTELExporterEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracer:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	st, err := store.New(cfg.StorageVolume)
	if err != nil {
		log.Fatal("Failed to open storage volume:", err)
	}

	canonical, err := services.NewCanonicalPDF(cfg)
	if err != nil {
		log.Fatal("Failed to configure canonical PDF source:", err)
	}
	canonical.WithMetrics(metrics)

	previews, err := services.NewPreviewService(cfg)
	if err != nil {
		log.Fatal("Failed to configure preview source:", err)
	}

	sandbox, err := services.NewExtractor(cfg)
	if err != nil {
		log.Fatal("Failed to configure extractor sandbox:", err)
	}

	if cfg.WaitForServices {
		waitForServices(cfg, st, sandbox)
	}

	// Create Asynq server
	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueExtraction: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(st, canonical, previews, sandbox, cfg.Workdir, metrics)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskExtract, processor.ProcessExtraction)
	mux.HandleFunc(queue.TaskHealthCheck, processor.ProcessHealthCheck)

	logger.Info("starting extraction worker",
		"concurrency", cfg.WorkerConcurrency,
		"queue", queue.QueueExtraction,
		"image", sandbox.Image())

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

// waitForServices blocks until the storage volume and the docker daemon
// answer. Upstream PDF sources are checked per-task instead; they may come
// and go without taking the worker down.
func waitForServices(cfg *config.Config, st *store.Store, sandbox *services.Extractor) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		ready := st.IsAvailable() && sandbox.IsAvailable(ctx)
		cancel()
		if ready {
			return
		}
		logger.Info("waiting for services to become available",
			"sleep", cfg.WaitOnStartup)
		time.Sleep(cfg.WaitOnStartup)
	}
}
