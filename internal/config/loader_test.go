package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		check         func(t *testing.T, cfg *FetchdeckConfig)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *FetchdeckConfig) {
				if cfg.OutputDir != "downloads" {
					t.Errorf("output_dir = %q, want downloads", cfg.OutputDir)
				}
				if len(cfg.Presets) != 3 {
					t.Errorf("presets count = %d, want 3", len(cfg.Presets))
				}
				if cfg.Tools.Wget != "wget" {
					t.Errorf("wget = %q, want wget", cfg.Tools.Wget)
				}
			},
		},
		{
			name:         "Global only - adds new preset",
			globalConfig: `{"presets": {"phone": {"video_codec": "libx264", "speed": "fast", "crf": 30, "audio_codec": "aac", "audio_bitrate": "64k"}}}`,
			check: func(t *testing.T, cfg *FetchdeckConfig) {
				if len(cfg.Presets) != 4 {
					t.Errorf("presets count = %d, want 4 (3 defaults + 1 new)", len(cfg.Presets))
				}
				if cfg.Presets["phone"].CRF != 30 {
					t.Errorf("phone crf = %d, want 30", cfg.Presets["phone"].CRF)
				}
			},
		},
		{
			name:          "Project only - overrides a single tool",
			projectConfig: `{"tools": {"ffmpeg": "/opt/ffmpeg/bin/ffmpeg"}}`,
			check: func(t *testing.T, cfg *FetchdeckConfig) {
				if cfg.Tools.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
					t.Errorf("ffmpeg = %q", cfg.Tools.FFmpeg)
				}
				if cfg.Tools.FFprobe != "ffprobe" {
					t.Errorf("ffprobe = %q, want default kept", cfg.Tools.FFprobe)
				}
			},
		},
		{
			name:          "Both with merge - project wins",
			globalConfig:  `{"output_dir": "/srv/global", "archive_format": "tar.gz", "task_timeout": "1h"}`,
			projectConfig: `{"output_dir": "/srv/project", "retry": {"max_retries": 7}}`,
			check: func(t *testing.T, cfg *FetchdeckConfig) {
				if cfg.OutputDir != "/srv/project" {
					t.Errorf("output_dir = %q, want /srv/project", cfg.OutputDir)
				}
				if cfg.ArchiveFormat != "tar.gz" {
					t.Errorf("archive_format = %q, want tar.gz from global", cfg.ArchiveFormat)
				}
				if cfg.TaskTimeout.Std() != time.Hour {
					t.Errorf("task_timeout = %s, want 1h", cfg.TaskTimeout.Std())
				}
				if cfg.Retry.MaxRetries != 7 {
					t.Errorf("max_retries = %d, want 7", cfg.Retry.MaxRetries)
				}
				if cfg.Retry.InitialInterval.Std() != 500*time.Millisecond {
					t.Errorf("initial_interval = %s, want default kept", cfg.Retry.InitialInterval.Std())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			var globalPath, projectPath string
			if tt.globalConfig != "" {
				globalPath = writeConfig(t, tmpDir, "global.json", tt.globalConfig)
			}
			if tt.projectConfig != "" {
				projectPath = writeConfig(t, tmpDir, "project.json", tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := writeConfig(t, tmpDir, "global.json", "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"bad archive format": `{"archive_format": "rar"}`,
		"unknown preset":     `{"preset": "ultra"}`,
		"bad duration":       `{"task_timeout": "soon"}`,
		"negative timeout":   `{"task_timeout": "-1m"}`,
		"empty output dir":   `{"output_dir": ""}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "project.json", body)
			if _, err := Load("", path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	if cfg.ArchiveFormat != "zip" {
		t.Errorf("archive_format = %q, want zip", cfg.ArchiveFormat)
	}
	if _, err := cfg.ActivePreset(); err != nil {
		t.Errorf("default preset missing: %v", err)
	}
}

func TestDuration_NumericNanoseconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte("1500000000")); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if d.Std() != 1500*time.Millisecond {
		t.Errorf("got %s, want 1.5s", d.Std())
	}
}
