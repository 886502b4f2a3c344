package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/fetchdeck/internal/config"
	"github.com/aristath/fetchdeck/internal/log"
)

func TestDescribeParams(t *testing.T) {
	got := describeParams(map[string]string{
		"url":        "https://example.com/",
		"output_dir": "downloads",
		"dest":       "",
	})
	assert.Equal(t, "output_dir=downloads url=https://example.com/", got)
	assert.Equal(t, "", describeParams(nil))
}

func TestHistoryPathPrecedence(t *testing.T) {
	c := &RootCommand{Config: config.DefaultConfig()}
	assert.Equal(t, filepath.Join(fetchdeckHome(), "history.db"), c.historyPath())

	c.Config.HistoryDB = "/var/lib/fetchdeck/history.db"
	assert.Equal(t, "/var/lib/fetchdeck/history.db", c.historyPath())

	c.HistoryDB = "/tmp/override.db"
	assert.Equal(t, "/tmp/override.db", c.historyPath())
}

func TestNewEnvFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tools.Wget = "/opt/bin/wget"
	cfg.Tools.YtDlp = "/opt/bin/yt-dlp"
	cfg.Retry.MaxRetries = -1
	cfg.Retry.InitialInterval = config.Duration(time.Second)

	c := &RootCommand{Config: cfg, Logger: log.Noop}
	env := c.newEnv()

	assert.Equal(t, "/opt/bin/wget", env.Tools.Wget)
	assert.Equal(t, "/opt/bin/yt-dlp", env.Tools.YtDlp)
	assert.Equal(t, "ffmpeg", env.Tools.FFmpeg)
	assert.Equal(t, -1, env.Retry.MaxRetries)
	assert.Equal(t, time.Second, env.Retry.InitialInterval)
	assert.NotNil(t, env.Procs)
	assert.NotNil(t, env.Breakers)
}

func TestOutputDirFallsBackToConfig(t *testing.T) {
	c := &RootCommand{Config: config.DefaultConfig()}
	assert.Equal(t, "downloads", c.outputDir(""))
	assert.Equal(t, "elsewhere", c.outputDir("elsewhere"))
}
