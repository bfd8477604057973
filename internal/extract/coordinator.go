// Package extract coordinates extraction tasks: deterministic task identity,
// dispatch onto the queue, and status resolution against the queue backend.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/internal/queue"
	"arxiv-fulltext-service/internal/store"
	"arxiv-fulltext-service/models"
)

var (
	// ErrNoSuchTask indicates the queue backend has no record of the task.
	ErrNoSuchTask = errors.New("no such task")
	// ErrTaskCreationFailed indicates the pre-emptive metadata write or the
	// queue publish failed.
	ErrTaskCreationFailed = errors.New("could not create task")
)

// Coordinator owns the extraction task lifecycle. Task identity is a pure
// function of (bucket, identifier, extractor version), which doubles as the
// idempotency key: at most one task is in flight per triple.
type Coordinator struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	store     *store.Store
	version   string
	timeout   time.Duration
	retention time.Duration
}

func New(redisOpt asynq.RedisClientOpt, st *store.Store, version string,
	timeout, retention time.Duration) *Coordinator {
	return &Coordinator{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		store:     st,
		version:   version,
		timeout:   timeout,
		retention: retention,
	}
}

// Version returns the current extractor version.
func (c *Coordinator) Version() string {
	return c.version
}

// Close releases the queue client.
func (c *Coordinator) Close() error {
	return c.client.Close()
}

// CreateTask persists the in-progress metadata record and publishes the
// extraction task. The metadata write happens strictly before the publish so
// that a client sees a consistent view immediately after the 202: there is
// never a visible task without a record in the store.
func (c *Coordinator) CreateTask(ctx context.Context, identifier, bucket, owner, token string, force bool) (string, error) {
	taskID := models.TaskID(bucket, identifier, c.version)
	extraction := models.Extraction{
		Identifier: identifier,
		Bucket:     bucket,
		Version:    c.version,
		Status:     models.StatusInProgress,
		Started:    time.Now().UTC(),
		Owner:      owner,
		TaskID:     taskID,
	}
	if err := c.store.Store(&extraction, ""); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTaskCreationFailed, err)
	}

	if force {
		// Make room for re-publication under the same id. The previous task
		// keeps running if already started; whichever finishes last writes
		// the terminal state.
		if err := c.inspector.DeleteTask(queue.QueueExtraction, taskID); err != nil &&
			!errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			logger.Warn("could not delete previous task", "task_id", taskID, "error", err)
		}
	}

	task, err := queue.NewExtractTask(queue.ExtractPayload{
		Identifier: identifier,
		Bucket:     bucket,
		Version:    c.version,
		Owner:      owner,
		Token:      token,
	}, c.timeout, c.retention)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTaskCreationFailed, err)
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		if taskAlreadyInFlight(force, err) {
			// The previous task still holds the id: it could not be
			// deleted because it is running, and it is doing exactly the
			// requested work. The pre-emptive write above already
			// refreshed the record; whichever execution finishes last
			// writes the terminal state.
			logger.Info("task already in flight, accepting resubmission", "task_id", taskID)
			return taskID, nil
		}
		return "", fmt.Errorf("%w: %v", ErrTaskCreationFailed, err)
	}
	logger.Info("created extraction task", "task_id", taskID)
	return taskID, nil
}

// taskAlreadyInFlight reports whether a publish failure under force means
// the running task under the same deterministic id covers the request.
func taskAlreadyInFlight(force bool, err error) bool {
	return force && errors.Is(err, asynq.ErrTaskIDConflict)
}

// GetTask resolves the live status of a task from the queue backend.
func (c *Coordinator) GetTask(ctx context.Context, identifier, bucket, version string) (*models.Extraction, error) {
	taskID := models.TaskID(bucket, identifier, version)
	info, err := c.inspector.GetTaskInfo(queue.QueueExtraction, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTask, taskID)
		}
		return nil, err
	}

	extraction := &models.Extraction{
		Identifier: identifier,
		Bucket:     bucket,
		Version:    version,
		TaskID:     taskID,
	}
	applyTaskState(extraction, info)
	return extraction, nil
}

// applyTaskState maps queue backend states onto the external status machine.
// Everything short of a terminal state reads as in-progress; an unknown task
// never reaches this point.
func applyTaskState(extraction *models.Extraction, info *asynq.TaskInfo) {
	switch info.State {
	case asynq.TaskStateArchived:
		extraction.Status = models.StatusFailed
		extraction.Exception = info.LastErr
	case asynq.TaskStateCompleted:
		extraction.Status = models.StatusSucceeded
		var result queue.ExtractResult
		if len(info.Result) > 0 && json.Unmarshal(info.Result, &result) == nil {
			extraction.Owner = result.Owner
		}
	default:
		// pending, active, scheduled, retry, aggregating
		extraction.Status = models.StatusInProgress
	}
}

// IsAvailable verifies that the queue round-trips by publishing a no-op
// task. With awaitResult it blocks until a worker has completed the task or
// the probe times out.
func (c *Coordinator) IsAvailable(ctx context.Context, awaitResult bool) bool {
	task := queue.NewHealthCheckTask()
	info, err := c.client.EnqueueContext(ctx, task, asynq.TaskID(uuid.NewString()))
	if err != nil {
		logger.Error("queue probe failed", "error", err)
		return false
	}
	if !awaitResult {
		return true
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := c.inspector.GetTaskInfo(info.Queue, info.ID)
		if err != nil {
			return false
		}
		if current.State == asynq.TaskStateCompleted {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	logger.Warn("queue probe timed out waiting for a worker")
	return false
}
