package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an extraction. InProgress is the initial
// and only non-terminal state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Supported buckets. The bucket selects identifier interpretation, path
// layout, and the PDF source adapter. Any other value is treated as
// not-found at the API boundary.
const (
	BucketArxiv      = "arxiv"
	BucketSubmission = "submission"
)

// ValidBucket reports whether bucket is in the closed set of buckets.
func ValidBucket(bucket string) bool {
	return bucket == BucketArxiv || bucket == BucketSubmission
}

// Supported content formats.
const (
	FormatPlain = "plain"
	FormatPSV   = "psv"
)

// ValidFormat reports whether format is in the closed set of formats.
func ValidFormat(format string) bool {
	return format == FormatPlain || format == FormatPSV
}

// TaskID computes the deterministic task identity for an extraction. It is
// used both as the queue correlation id and as the idempotency key: at most
// one extraction is in flight per (bucket, identifier, version) triple.
func TaskID(bucket, identifier, version string) string {
	return fmt.Sprintf("%s::%s::%s", bucket, identifier, version)
}

// Extraction is the central record of the service. Content is carried
// in-memory only; it is persisted as a separate blob and never serialised
// into the metadata record.
type Extraction struct {
	Identifier string     `json:"identifier"`
	Bucket     string     `json:"bucket"`
	Version    string     `json:"version"`
	Status     Status     `json:"status"`
	Started    time.Time  `json:"started"`
	Ended      *time.Time `json:"ended"`
	Owner      string     `json:"owner,omitempty"`
	TaskID     string     `json:"task_id"`
	Exception  string     `json:"exception,omitempty"`
	Content    string     `json:"-"`
}

// Copy returns a shallow copy of the extraction.
func (e Extraction) Copy() Extraction {
	return e
}

// WithStatus returns a copy of the extraction marked terminal with the given
// status and an end time of now.
func (e Extraction) WithStatus(status Status) Extraction {
	out := e
	out.Status = status
	now := time.Now().UTC()
	out.Ended = &now
	return out
}

// WithFailure returns a copy of the extraction marked failed with the given
// reason.
func (e Extraction) WithFailure(reason string) Extraction {
	out := e.WithStatus(StatusFailed)
	out.Exception = reason
	out.Content = ""
	return out
}

// ToDict returns the API representation of the extraction, with content
// included only when present.
func (e Extraction) ToDict() map[string]interface{} {
	out := map[string]interface{}{
		"identifier": e.Identifier,
		"bucket":     e.Bucket,
		"version":    e.Version,
		"status":     string(e.Status),
		"started":    e.Started,
		"ended":      e.Ended,
		"owner":      ownerOrNil(e.Owner),
		"task_id":    e.TaskID,
	}
	if e.Exception != "" {
		out["exception"] = e.Exception
	}
	if e.Content != "" {
		out["content"] = e.Content
	}
	return out
}

func ownerOrNil(owner string) interface{} {
	if owner == "" {
		return nil
	}
	return owner
}
