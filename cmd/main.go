package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arxiv-fulltext-service/internal/config"
	"arxiv-fulltext-service/internal/extract"
	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/store"
	"arxiv-fulltext-service/internal/telemetry"
	"arxiv-fulltext-service/middleware"
	"arxiv-fulltext-service/routes"
	"arxiv-fulltext-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg, "fulltext-api")

	shutdownTracer, err := telemetry.InitTracer("fulltext-api", cfg.OTELExporterEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracer:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to Redis (task broker and rate limiter)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

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

	coordinator := extract.New(config.AsynqRedisOpt(cfg), st, cfg.ExtractorVersion,
		cfg.TaskTimeout, cfg.ResultRetention)
	defer coordinator.Close()

	if cfg.WaitForServices {
		waitForServices(cfg, st, coordinator)
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("fulltext-api"))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Setup routes
	authMiddleware := middleware.NewAuthMiddleware(cfg)
	routes.SetupExtractionRoutes(router, st, coordinator, canonical, previews, authMiddleware, metrics)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}

// waitForServices blocks until the storage volume and the task queue answer,
// so that a fresh deployment does not serve errors while its dependencies
// are still coming up.
func waitForServices(cfg *config.Config, st *store.Store, coordinator *extract.Coordinator) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		ready := st.IsAvailable() && coordinator.IsAvailable(ctx, false)
		cancel()
		if ready {
			return
		}
		logger.Info("waiting for services to become available",
			"sleep", cfg.WaitOnStartup)
		time.Sleep(cfg.WaitOnStartup)
	}
}
