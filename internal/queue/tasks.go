// Package queue defines the extraction task carried on the Redis-backed
// queue and the worker-side processor that drains it.
package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"arxiv-fulltext-service/models"
)

const (
	// QueueExtraction is the queue all extraction tasks are published to.
	QueueExtraction = "extraction"

	TaskExtract     = "fulltext:extract"
	TaskHealthCheck = "fulltext:healthcheck"
)

// ExtractPayload is the task payload for a single extraction. The task id is
// the deterministic identity computed from (bucket, identifier, version);
// the payload repeats the triple so the worker does not have to parse it
// back out of the id.
type ExtractPayload struct {
	Identifier string `json:"identifier"`
	Bucket     string `json:"bucket"`
	Version    string `json:"version"`
	Owner      string `json:"owner,omitempty"`
	Token      string `json:"token,omitempty"`
}

// ExtractResult is the queue result recorded for a finished task. It never
// carries content, so results stay small.
type ExtractResult struct {
	Identifier string        `json:"identifier"`
	Bucket     string        `json:"bucket"`
	Version    string        `json:"version"`
	Status     models.Status `json:"status"`
	Owner      string        `json:"owner,omitempty"`
}

// NewExtractTask builds the extraction task. MaxRetry is zero: a failed
// extraction is terminal, and redelivery after a worker crash comes from the
// queue lease rather than the retry counter. Retention keeps the completed
// result available for status lookups.
func NewExtractTask(payload ExtractPayload, timeout, retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskExtract,
		data,
		asynq.TaskID(models.TaskID(payload.Bucket, payload.Identifier, payload.Version)),
		asynq.Queue(QueueExtraction),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(retention),
	), nil
}

// NewHealthCheckTask builds a no-op task used by health checks to verify
// that the queue round-trips.
func NewHealthCheckTask() *asynq.Task {
	return asynq.NewTask(
		TaskHealthCheck,
		nil,
		asynq.Queue(QueueExtraction),
		asynq.MaxRetry(0),
		asynq.Retention(time.Minute),
	)
}
