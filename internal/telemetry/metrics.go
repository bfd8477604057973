package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	TasksCreated       metric.Int64Counter
	ExtractionDuration metric.Float64Histogram
	ExtractionFailures metric.Int64Counter
	UpstreamRetries    metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("arxiv-fulltext-service")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tasksCreated, err := meter.Int64Counter(
		"extraction.tasks.created",
		metric.WithDescription("Extraction tasks published to the queue"),
	)
	if err != nil {
		return nil, err
	}

	extractionDuration, err := meter.Float64Histogram(
		"extraction.duration",
		metric.WithDescription("End-to-end extraction duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	extractionFailures, err := meter.Int64Counter(
		"extraction.failures.total",
		metric.WithDescription("Extraction tasks that ended in failure"),
	)
	if err != nil {
		return nil, err
	}

	upstreamRetries, err := meter.Int64Counter(
		"upstream.pdf.retries",
		metric.WithDescription("Render-wait retries against the canonical PDF endpoint"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		TasksCreated:       tasksCreated,
		ExtractionDuration: extractionDuration,
		ExtractionFailures: extractionFailures,
		UpstreamRetries:    upstreamRetries,
	}, nil
}
