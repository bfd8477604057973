package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTaskIDDeterministic(t *testing.T) {
	a := TaskID(BucketArxiv, "1801.00123", "0.3")
	b := TaskID(BucketArxiv, "1801.00123", "0.3")
	if a != b {
		t.Fatalf("task id not deterministic: %q vs %q", a, b)
	}
	if a == TaskID(BucketSubmission, "1801.00123", "0.3") {
		t.Fatalf("task id must differ across buckets")
	}
	if a == TaskID(BucketArxiv, "1801.00123", "0.4") {
		t.Fatalf("task id must differ across versions")
	}
}

func TestExtractionJSONExcludesContent(t *testing.T) {
	extraction := Extraction{
		Identifier: "1801.00123",
		Bucket:     BucketArxiv,
		Version:    "0.3",
		Status:     StatusSucceeded,
		Started:    time.Now().UTC(),
		Content:    "the full text",
	}
	raw, err := json.Marshal(extraction)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "the full text") {
		t.Fatalf("serialized record carries content: %s", raw)
	}
}

func TestWithFailureClearsContent(t *testing.T) {
	extraction := Extraction{
		Identifier: "1801.00123",
		Bucket:     BucketArxiv,
		Status:     StatusInProgress,
		Content:    "partial",
	}
	failed := extraction.WithFailure("boom")
	if failed.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}
	if failed.Exception != "boom" {
		t.Fatalf("exception = %q", failed.Exception)
	}
	if failed.Content != "" {
		t.Fatalf("failed record must not carry content")
	}
	if failed.Ended == nil {
		t.Fatalf("terminal record must carry an end time")
	}
	// The original is untouched.
	if extraction.Status != StatusInProgress || extraction.Content != "partial" {
		t.Fatalf("original record mutated: %+v", extraction)
	}
}

func TestToDict(t *testing.T) {
	extraction := Extraction{
		Identifier: "1801.00123",
		Bucket:     BucketArxiv,
		Version:    "0.3",
		Status:     StatusInProgress,
	}
	d := extraction.ToDict()
	if d["owner"] != nil {
		t.Fatalf("owner should be nil when unowned, got %v", d["owner"])
	}
	if _, ok := d["content"]; ok {
		t.Fatalf("content key present without content")
	}

	extraction.Owner = "1234"
	extraction.Content = "text"
	d = extraction.ToDict()
	if d["owner"] != "1234" {
		t.Fatalf("owner = %v", d["owner"])
	}
	if d["content"] != "text" {
		t.Fatalf("content = %v", d["content"])
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusInProgress.Terminal() {
		t.Fatalf("in_progress must not be terminal")
	}
	if !StatusSucceeded.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("succeeded and failed are terminal")
	}
}

func TestValidation(t *testing.T) {
	if !ValidBucket(BucketArxiv) || !ValidBucket(BucketSubmission) {
		t.Fatalf("known buckets must validate")
	}
	if ValidBucket("other") {
		t.Fatalf("unknown bucket must not validate")
	}
	if !ValidFormat(FormatPlain) || !ValidFormat(FormatPSV) {
		t.Fatalf("known formats must validate")
	}
	if ValidFormat("pdf") {
		t.Fatalf("unknown format must not validate")
	}
}
