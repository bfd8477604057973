package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"

	"arxiv-fulltext-service/internal/queue"
	"arxiv-fulltext-service/models"
)

func TestTaskAlreadyInFlight(t *testing.T) {
	// A running task cannot be deleted, so a forced resubmission hits the
	// id conflict on publish. That counts as accepted work.
	conflict := fmt.Errorf("could not enqueue: %w", asynq.ErrTaskIDConflict)
	if !taskAlreadyInFlight(true, conflict) {
		t.Fatalf("forced resubmission over a running task should be accepted")
	}
	if taskAlreadyInFlight(false, conflict) {
		t.Fatalf("conflict without force is a publish failure")
	}
	if taskAlreadyInFlight(true, errors.New("broker unreachable")) {
		t.Fatalf("only id conflicts read as in-flight work")
	}
}

func TestApplyTaskStateMapping(t *testing.T) {
	cases := []struct {
		state asynq.TaskState
		want  models.Status
	}{
		{asynq.TaskStatePending, models.StatusInProgress},
		{asynq.TaskStateActive, models.StatusInProgress},
		{asynq.TaskStateScheduled, models.StatusInProgress},
		{asynq.TaskStateRetry, models.StatusInProgress},
		{asynq.TaskStateAggregating, models.StatusInProgress},
		{asynq.TaskStateArchived, models.StatusFailed},
		{asynq.TaskStateCompleted, models.StatusSucceeded},
	}
	for _, c := range cases {
		extraction := &models.Extraction{}
		applyTaskState(extraction, &asynq.TaskInfo{State: c.state})
		if extraction.Status != c.want {
			t.Fatalf("state %v mapped to %q, want %q", c.state, extraction.Status, c.want)
		}
	}
}

func TestApplyTaskStateCarriesFailureReason(t *testing.T) {
	extraction := &models.Extraction{}
	applyTaskState(extraction, &asynq.TaskInfo{
		State:   asynq.TaskStateArchived,
		LastErr: "container exited with status 1",
	})
	if extraction.Exception != "container exited with status 1" {
		t.Fatalf("exception = %q", extraction.Exception)
	}
}

func TestApplyTaskStateReadsResultOwner(t *testing.T) {
	result, err := json.Marshal(queue.ExtractResult{
		Identifier: "12345/asdf1234==",
		Bucket:     models.BucketSubmission,
		Version:    "0.3",
		Status:     models.StatusSucceeded,
		Owner:      "5678",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	extraction := &models.Extraction{}
	applyTaskState(extraction, &asynq.TaskInfo{
		State:  asynq.TaskStateCompleted,
		Result: result,
	})
	if extraction.Status != models.StatusSucceeded {
		t.Fatalf("status = %q", extraction.Status)
	}
	if extraction.Owner != "5678" {
		t.Fatalf("owner = %q, want 5678", extraction.Owner)
	}
}
