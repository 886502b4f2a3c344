package config

import (
	"time"
)

// DefaultConfig returns the default configuration with built-in tools and presets.
func DefaultConfig() *FetchdeckConfig {
	return &FetchdeckConfig{
		OutputDir:     "downloads",
		ArchiveFormat: "zip",
		Preset:        "standard",
		HistoryDB:     "",
		Tools: ToolsConfig{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			Wget:    "wget",
		},
		Presets: map[string]PresetConfig{
			"standard": {
				VideoCodec:   "libx264",
				Speed:        "medium",
				CRF:          23,
				AudioCodec:   "aac",
				AudioBitrate: "128k",
			},
			"small": {
				VideoCodec:   "libx264",
				Speed:        "slow",
				CRF:          28,
				AudioCodec:   "aac",
				AudioBitrate: "96k",
			},
			"archive": {
				VideoCodec:   "libx265",
				Speed:        "slow",
				CRF:          20,
				AudioCodec:   "aac",
				AudioBitrate: "192k",
			},
		},
		Retry: RetryConfig{
			InitialInterval: Duration(500 * time.Millisecond),
			MaxInterval:     Duration(10 * time.Second),
			MaxElapsedTime:  Duration(2 * time.Minute),
			Multiplier:      2.0,
			MaxRetries:      3,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      Duration(30 * time.Second),
		},
		Upload: UploadConfig{
			Method: "POST",
			Field:  "file",
		},
	}
}
