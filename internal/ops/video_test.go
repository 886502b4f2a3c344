package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

func TestVideo_Validation(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	tests := map[string]VideoParams{
		"uncreatable outdir": {URL: "https://example.com/watch?v=1", OutputDir: filepath.Join(blocker, "videos")},
		"empty url":          {OutputDir: "/tmp"},
		"not a web url":      {URL: "file:///etc/passwd", OutputDir: "/tmp"},
		"missing outdir":     {URL: "https://example.com/watch?v=1"},
	}

	for name, params := range tests {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			_, err := NewVideo(nil, params).Run(context.Background(), sink)
			assert.ErrorIs(t, err, operation.ErrValidation)
			assert.True(t, sink.Empty())
		})
	}
}

func TestVideoTracker_Update(t *testing.T) {
	sink := &recordingSink{}
	tracker := &videoTracker{sink: sink}
	title := "A Talk"

	tracker.update(ytdlp.ProgressUpdate{Filename: "/out/A_Talk.mp4", TotalBytes: 1000, DownloadedBytes: 250, Info: &ytdlp.ExtractedInfo{Title: &title}})
	tracker.update(ytdlp.ProgressUpdate{Filename: "/out/A_Talk.mp4", TotalBytes: 1000, DownloadedBytes: 251})
	tracker.update(ytdlp.ProgressUpdate{Filename: "/out/A_Talk.mp4", TotalBytes: 1000, DownloadedBytes: 1000})

	assert.Equal(t, []string{"Writing A_Talk.mp4"}, sink.Statuses())
	assert.Equal(t, []float64{0.25, 0.99}, sink.Progresses())
	assert.Equal(t, "A Talk", tracker.title())
	assert.Equal(t, "/out/A_Talk.mp4", tracker.filename())
}

func TestVideoTracker_Cleanup(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(file+partSuffix, []byte("partial"), 0o644))

	tracker := &videoTracker{sink: operation.DiscardSink}
	tracker.update(ytdlp.ProgressUpdate{Filename: file})
	tracker.cleanup(log.Noop)

	assert.NoFileExists(t, file+partSuffix)
}

func TestVideoFraction(t *testing.T) {
	assert.Equal(t, 0.0, videoFraction(10, 0))
	assert.Equal(t, 0.5, videoFraction(50, 100))
	assert.Equal(t, 0.99, videoFraction(150, 100))
}
