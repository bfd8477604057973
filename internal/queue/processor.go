package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/psv"
	"arxiv-fulltext-service/internal/store"
	"arxiv-fulltext-service/internal/telemetry"
	"arxiv-fulltext-service/models"
)

// CanonicalSource fetches PDFs for announced e-prints.
type CanonicalSource interface {
	Retrieve(ctx context.Context, identifier string) (io.ReadCloser, error)
}

// PreviewSource fetches PDFs for submission previews, reporting the owner
// and a content checksum.
type PreviewSource interface {
	Retrieve(ctx context.Context, identifier, token string) (io.ReadCloser, string, string, error)
}

// Sandbox runs the extractor against a PDF on disk.
type Sandbox interface {
	DoExtraction(ctx context.Context, pdfPath string) (string, error)
}

// TaskProcessor executes extraction tasks: fetch the PDF, run the sandboxed
// extractor, normalise, and persist both content formats.
type TaskProcessor struct {
	store     *store.Store
	canonical CanonicalSource
	previews  PreviewSource
	sandbox   Sandbox
	workdir   string
	metrics   *telemetry.Metrics
}

func NewTaskProcessor(st *store.Store, canonical CanonicalSource, previews PreviewSource,
	sandbox Sandbox, workdir string, metrics *telemetry.Metrics) *TaskProcessor {
	return &TaskProcessor{
		store:     st,
		canonical: canonical,
		previews:  previews,
		sandbox:   sandbox,
		workdir:   workdir,
		metrics:   metrics,
	}
}

// ProcessExtraction handles a single extraction task. The coordinator wrote
// the in-progress metadata record before publishing; any failure between PDF
// retrieval and plain-text persistence writes the failed record and
// re-raises so the queue records the failure. Once the plain text is stored
// the extraction is succeeded; a PSV normalisation failure is only logged.
func (p *TaskProcessor) ProcessExtraction(ctx context.Context, t *asynq.Task) error {
	var payload ExtractPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	ctx, span := otel.Tracer("arxiv-fulltext-service").Start(ctx, "extraction",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	start := time.Now()
	logger.Info("processing extraction", "identifier", payload.Identifier,
		"bucket", payload.Bucket, "version", payload.Version)

	extraction, err := p.store.Retrieve(payload.Identifier, payload.Version, "", payload.Bucket, true)
	if err != nil {
		return fmt.Errorf("no metadata record for task: %v: %w", err, asynq.SkipRetry)
	}

	pdfPath, owner, err := p.retrievePDF(ctx, payload)
	if err != nil {
		return p.fail(extraction, err)
	}
	defer os.Remove(pdfPath)
	if owner != "" {
		extraction.Owner = owner
	}

	content, err := p.sandbox.DoExtraction(ctx, pdfPath)
	if err != nil {
		return p.fail(extraction, err)
	}
	logger.Info("text extraction succeeded", "identifier", payload.Identifier,
		"chars", len(content))

	succeeded := extraction.WithStatus(models.StatusSucceeded)
	succeeded.Content = content
	if err := p.store.Store(&succeeded, models.FormatPlain); err != nil {
		return p.fail(extraction, err)
	}

	// Once the plain text is stored the extraction has succeeded; PSV is
	// best-effort.
	normalized := succeeded
	normalized.Content = psv.NormalizeTextPSV(content)
	if err := p.store.Store(&normalized, models.FormatPSV); err != nil {
		logger.Error("could not store psv content", "identifier", payload.Identifier,
			"error", err)
	}

	if p.metrics != nil {
		p.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	}
	logger.Info("finished extraction", "identifier", payload.Identifier,
		"duration", time.Since(start))

	return p.writeResult(t, &succeeded)
}

// ProcessHealthCheck is a no-op used to verify queue round-trips.
func (p *TaskProcessor) ProcessHealthCheck(ctx context.Context, t *asynq.Task) error {
	return nil
}

// retrievePDF fetches the PDF via the adapter for the payload's bucket and
// spools it into the working directory under a unique name. For submission
// previews the resource owner from the upstream response is returned.
func (p *TaskProcessor) retrievePDF(ctx context.Context, payload ExtractPayload) (string, string, error) {
	var (
		stream io.ReadCloser
		owner  string
		err    error
	)
	switch payload.Bucket {
	case models.BucketSubmission:
		stream, owner, _, err = p.previews.Retrieve(ctx, payload.Identifier, payload.Token)
	default:
		stream, err = p.canonical.Retrieve(ctx, payload.Identifier)
	}
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	path := fmt.Sprintf("%s/%s.pdf", p.workdir, uuid.NewString())
	out, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		os.Remove(path)
		return "", "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", "", err
	}

	// The sandboxed extractor is the arbiter of what it can read; a file
	// that does not parse here is only flagged for the log.
	if err := inspectPDF(path); err != nil {
		logger.Warn("downloaded file does not parse as a PDF",
			"identifier", payload.Identifier, "error", err)
	}
	return path, owner, nil
}

// inspectPDF reports whether the download parses as a PDF, with a page count
// for the log when it does.
func inspectPDF(path string) error {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("unreadable download: %v", err)
	}
	defer f.Close()
	logger.Debug("inspected pdf", "path", path, "pages", reader.NumPage())
	return nil
}

// fail records the failure on the metadata record and re-raises so that the
// queue archives the task with the same reason.
func (p *TaskProcessor) fail(extraction *models.Extraction, cause error) error {
	failed := extraction.WithFailure(cause.Error())
	if err := p.store.Store(&failed, ""); err != nil {
		logger.Error("could not record failure", "identifier", extraction.Identifier,
			"error", err)
	}
	if p.metrics != nil {
		p.metrics.ExtractionFailures.Add(context.Background(), 1)
	}
	logger.Error("extraction failed", "identifier", extraction.Identifier,
		"reason", cause.Error())
	return cause
}

// writeResult records the small terminal result on the queue backend.
func (p *TaskProcessor) writeResult(t *asynq.Task, extraction *models.Extraction) error {
	result, err := json.Marshal(ExtractResult{
		Identifier: extraction.Identifier,
		Bucket:     extraction.Bucket,
		Version:    extraction.Version,
		Status:     extraction.Status,
		Owner:      extraction.Owner,
	})
	if err != nil {
		return nil
	}
	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write(result); err != nil {
			logger.Warn("could not write task result", "task_id", w.TaskID(), "error", err)
		}
	}
	return nil
}
