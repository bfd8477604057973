package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if d := getEnvDuration("TEST_DURATION", time.Second); d != 90*time.Second {
		t.Fatalf("duration = %v, want 90s", d)
	}

	// Plain numbers read as seconds.
	t.Setenv("TEST_DURATION", "300")
	if d := getEnvDuration("TEST_DURATION", time.Second); d != 300*time.Second {
		t.Fatalf("duration = %v, want 300s", d)
	}

	t.Setenv("TEST_DURATION", "garbage")
	if d := getEnvDuration("TEST_DURATION", 7*time.Second); d != 7*time.Second {
		t.Fatalf("duration = %v, want the default", d)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("arxiv.org, export.arxiv.org ,,")
	if len(got) != 2 || got[0] != "arxiv.org" || got[1] != "export.arxiv.org" {
		t.Fatalf("splitList = %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.StorageVolume == "" {
		t.Fatalf("storage volume default missing")
	}
	if cfg.TaskTimeout <= 0 || cfg.ResultRetention <= 0 {
		t.Fatalf("queue timing defaults missing: %v %v", cfg.TaskTimeout, cfg.ResultRetention)
	}
}
