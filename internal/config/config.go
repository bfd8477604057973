package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Content/metadata store
	StorageVolume string

	// Extractor sandbox
	ExtractorImage   string
	ExtractorVersion string
	Workdir          string
	Mountdir         string
	DockerHost       string

	// Upstream PDF providers
	CanonicalEndpoint string
	CanonicalVerify   bool
	PreviewEndpoint   string
	PreviewVerify     bool
	SourceWhitelist   []string
	PDFRetrySleep     time.Duration
	RequestTimeout    time.Duration

	// Task queue (Redis broker + result backend)
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int
	TaskTimeout       time.Duration
	ResultRetention   time.Duration

	// Startup behaviour
	WaitForServices bool
	WaitOnStartup   time.Duration

	// Authorization (optional; empty secret disables the authorizer)
	JWTSecret string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTELExporterEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		StorageVolume: getEnv("STORAGE_VOLUME", "/tmp/storage"),

		ExtractorImage:   getEnv("EXTRACTOR_IMAGE", "arxiv/fulltext"),
		ExtractorVersion: getEnv("EXTRACTOR_VERSION", "0.3"),
		Workdir:          getEnv("WORKDIR", "/tmp/pdfs"),
		Mountdir:         getEnv("MOUNTDIR", "/tmp/pdfs"),
		DockerHost:       getEnv("DOCKER_HOST", ""),

		CanonicalEndpoint: getEnv("CANONICAL_ENDPOINT", "https://arxiv.org"),
		CanonicalVerify:   getEnvBool("CANONICAL_VERIFY", true),
		PreviewEndpoint:   getEnv("PREVIEW_ENDPOINT", "http://localhost:8001"),
		PreviewVerify:     getEnvBool("PREVIEW_VERIFY", true),
		SourceWhitelist:   splitList(getEnv("SOURCE_WHITELIST", "arxiv.org,export.arxiv.org")),
		PDFRetrySleep:     getEnvDuration("PDF_RETRY_SLEEP", 5*time.Second),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 1),
		TaskTimeout:       getEnvDuration("TASK_TIMEOUT", 30*time.Minute),
		ResultRetention:   getEnvDuration("RESULT_RETENTION", 24*time.Hour),

		WaitForServices: getEnvBool("WAIT_FOR_SERVICES", false),
		WaitOnStartup:   getEnvDuration("WAIT_ON_STARTUP", 5*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
	}

	// Validate required fields
	if cfg.StorageVolume == "" {
		return nil, fmt.Errorf("STORAGE_VOLUME is required")
	}
	if cfg.ExtractorImage == "" || cfg.ExtractorVersion == "" {
		return nil, fmt.Errorf("EXTRACTOR_IMAGE and EXTRACTOR_VERSION are required")
	}

	return cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain numbers are read as seconds, matching older deployments.
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
