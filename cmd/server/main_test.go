package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvBool(t *testing.T) {
	t.Setenv("ROVER_TEST_BOOL", "true")
	if !envBool("ROVER_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("ROVER_TEST_BOOL", "nope")
	if envBool("ROVER_TEST_BOOL", false) {
		t.Fatalf("unparsable value should fall back to default")
	}
	t.Setenv("ROVER_TEST_BOOL", "")
	if !envBool("ROVER_TEST_BOOL", true) {
		t.Fatalf("empty value should fall back to default")
	}
}

func TestLoadTuning_MissingFallsBackToDefaults(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	got, err := loadTuning(t.TempDir(), "", logger)
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if !got.RecordSteps || got.MaxGridSize == 0 || got.MaxSteps != 0 {
		t.Fatalf("expected defaults, got %+v", got)
	}

	bad := filepath.Join(t.TempDir(), "tuning.yaml")
	_ = os.WriteFile(bad, []byte("max_steps: -5\n"), 0o644)
	if _, err := loadTuning("", bad, logger); err == nil {
		t.Fatalf("expected error for invalid tuning")
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, true, logger)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("ROVER_INDEX_BACKEND", "off")
	if idx, err := openRuntimeIndex(dir, false, logger); err != nil || idx != nil {
		t.Fatalf("off: idx=%v err=%v", idx, err)
	}

	t.Setenv("ROVER_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(dir, false, logger); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("ROVER_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, false, logger)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	_ = idx.Close()
	if _, err := os.Stat(indexPath(dir)); err != nil {
		t.Fatalf("index file: %v", err)
	}
}
