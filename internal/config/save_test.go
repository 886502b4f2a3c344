package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Tools.Wget = "/usr/local/bin/wget"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	tools, _ := raw["tools"].(map[string]any)
	if tools["wget"] != "/usr/local/bin/wget" {
		t.Errorf("Expected wget '/usr/local/bin/wget', got %v", tools["wget"])
	}
	retry, _ := raw["retry"].(map[string]any)
	if retry["max_interval"] != "10s" {
		t.Errorf("Expected durations saved as strings, got %v", retry["max_interval"])
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.OutputDir = "/data/fetchdeck"
	cfg.ArchiveFormat = "tar.gz"
	cfg.TaskTimeout = Duration(45 * time.Minute)
	cfg.Upload.Endpoint = "https://uploads.example.com/v1/files"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.OutputDir != cfg.OutputDir {
		t.Errorf("output_dir = %q, want %q", loaded.OutputDir, cfg.OutputDir)
	}
	if loaded.ArchiveFormat != "tar.gz" {
		t.Errorf("archive_format = %q, want tar.gz", loaded.ArchiveFormat)
	}
	if loaded.TaskTimeout != cfg.TaskTimeout {
		t.Errorf("task_timeout = %s, want %s", loaded.TaskTimeout.Std(), cfg.TaskTimeout.Std())
	}
	if loaded.Upload.Endpoint != cfg.Upload.Endpoint {
		t.Errorf("upload endpoint = %q", loaded.Upload.Endpoint)
	}
	if len(loaded.Presets) != len(cfg.Presets) {
		t.Errorf("presets count = %d, want %d", len(loaded.Presets), len(cfg.Presets))
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	first := DefaultConfig()
	first.OutputDir = "/first"
	if err := Save(first, path); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := DefaultConfig()
	second.OutputDir = "/second"
	if err := Save(second, path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.OutputDir != "/second" {
		t.Errorf("output_dir = %q, want /second", loaded.OutputDir)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	bad := DefaultConfig()
	bad.ArchiveFormat = "rar"
	if err := Save(bad, path); err == nil {
		t.Fatal("expected Save to reject an invalid archive format")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if string(after) != string(before) {
		t.Error("invalid config overwrote the existing file")
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only config.json in %s, found %d entries", tmpDir, len(entries))
	}
}

func TestSaveNilConfig(t *testing.T) {
	if err := Save(nil, filepath.Join(t.TempDir(), "config.json")); err == nil {
		t.Fatal("expected an error for a nil config")
	}
}
