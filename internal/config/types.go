package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as a string ("30s", "2m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Plain numbers are nanoseconds.
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %s", data)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ToolsConfig names the external binaries fetchdeck shells out to.
type ToolsConfig struct {
	FFmpeg  string `json:"ffmpeg,omitempty"`
	FFprobe string `json:"ffprobe,omitempty"`
	Wget    string `json:"wget,omitempty"`
	YtDlp   string `json:"yt_dlp,omitempty"` // Empty uses yt-dlp from PATH
}

// PresetConfig is a named set of transcode settings.
type PresetConfig struct {
	VideoCodec   string `json:"video_codec"`
	Speed        string `json:"speed"`
	CRF          int    `json:"crf"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
}

// RetryConfig tunes retries of transient network failures.
type RetryConfig struct {
	InitialInterval Duration `json:"initial_interval"`
	MaxInterval     Duration `json:"max_interval"`
	MaxElapsedTime  Duration `json:"max_elapsed_time"`
	Multiplier      float64  `json:"multiplier"`
	MaxRetries      int      `json:"max_retries"` // <0 disables retries
}

// BreakerConfig tunes the per-host circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32   `json:"failure_threshold"`
	OpenTimeout      Duration `json:"open_timeout"`
}

// UploadConfig is where the upload operation sends files.
type UploadConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	Method   string `json:"method,omitempty"`
	Field    string `json:"field,omitempty"`
}

// FetchdeckConfig is the top-level configuration.
type FetchdeckConfig struct {
	OutputDir     string                  `json:"output_dir"`
	ArchiveFormat string                  `json:"archive_format"` // "zip" or "tar.gz"
	Preset        string                  `json:"preset"`         // Key into Presets used by transcode
	TaskTimeout   Duration                `json:"task_timeout"`   // 0 = no deadline
	HistoryDB     string                  `json:"history_db"`     // Empty uses ~/.fetchdeck/history.db
	Tools         ToolsConfig             `json:"tools"`
	Presets       map[string]PresetConfig `json:"presets"`
	Retry         RetryConfig             `json:"retry"`
	Breaker       BreakerConfig           `json:"breaker"`
	Upload        UploadConfig            `json:"upload"`
}

// ActivePreset returns the preset selected by Preset.
func (c *FetchdeckConfig) ActivePreset() (PresetConfig, error) {
	p, ok := c.Presets[c.Preset]
	if !ok {
		return PresetConfig{}, fmt.Errorf("unknown preset %q", c.Preset)
	}
	return p, nil
}

// Validate checks the merged configuration.
func (c *FetchdeckConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	switch c.ArchiveFormat {
	case "zip", "tar.gz":
	default:
		return fmt.Errorf("archive_format must be \"zip\" or \"tar.gz\", got %q", c.ArchiveFormat)
	}
	if _, err := c.ActivePreset(); err != nil {
		return err
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must not be negative")
	}
	return nil
}
