package ops

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// videoProgressInterval is how often yt-dlp progress is sampled.
const videoProgressInterval = 500 * time.Millisecond

// VideoParams describes a video fetch through yt-dlp.
type VideoParams struct {
	URL       string
	OutputDir string
	Format    string // yt-dlp format selector; empty lets yt-dlp pick
}

// Video downloads a single video with yt-dlp.
type Video struct {
	env    *Env
	params VideoParams
}

// NewVideo creates a video fetch operation.
func NewVideo(env *Env, params VideoParams) *Video {
	return &Video{env: env.defaults(), params: params}
}

func (v *Video) Name() string { return "video" }

func (v *Video) validate() error {
	if v.params.URL == "" {
		return operation.Validationf("url must not be empty")
	}
	u, err := url.Parse(v.params.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return operation.Validationf("not a web url: %q", v.params.URL)
	}
	if v.params.OutputDir == "" {
		return operation.Validationf("output directory must not be empty")
	}
	return ensureOutputDir(v.params.OutputDir)
}

func (v *Video) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	if err := v.validate(); err != nil {
		return operation.Result{}, err
	}

	logger := v.env.Logger.WithValues(log.Kv{"op": "video", "url": v.params.URL})
	sink.Status(fmt.Sprintf("Fetching video %s", v.params.URL))

	tracker := &videoTracker{sink: sink}

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(v.params.OutputDir, "%(title)s.%(ext)s"))
	if v.env.Tools.YtDlp != "" {
		dl.SetExecutable(v.env.Tools.YtDlp)
	}
	if v.params.Format != "" {
		dl.Format(v.params.Format)
	}
	dl.ProgressFunc(videoProgressInterval, tracker.update)

	result, err := dl.Run(ctx, v.params.URL)
	if err != nil {
		tracker.cleanup(logger)
		if ctx.Err() != nil {
			return operation.Result{}, operation.Cancelled(ctx)
		}
		output := ""
		exitCode := -1
		if result != nil {
			output = result.Stderr
			exitCode = result.ExitCode
		}
		return operation.Result{}, &operation.ToolError{Tool: "yt-dlp", ExitCode: exitCode, Output: output, Err: err}
	}

	path, title := tracker.filename(), tracker.title()
	if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 {
		if info[0].Filename != nil {
			path = *info[0].Filename
		}
		if info[0].Title != nil {
			title = *info[0].Title
		}
	}

	sink.Progress(1.0)
	logger.Infof("Fetched %q to %s", title, path)

	detail := path
	if title != "" {
		detail = fmt.Sprintf("%q saved to %s", title, path)
	}
	return operation.Result{
		Path:   path,
		Detail: detail,
		Meta: map[string]string{
			"url":   v.params.URL,
			"title": title,
		},
	}, nil
}

// videoTracker turns yt-dlp progress updates into sink events and remembers
// which file is being written.
type videoTracker struct {
	sink operation.Sink

	mu       sync.Mutex
	file     string
	name     string
	throttle progressThrottle
}

func (t *videoTracker) update(update ytdlp.ProgressUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if update.Filename != "" && update.Filename != t.file {
		t.file = update.Filename
		t.sink.Status(fmt.Sprintf("Writing %s", filepath.Base(update.Filename)))
	}
	if t.name == "" && update.Info != nil && update.Info.Title != nil {
		t.name = *update.Info.Title
	}
	if update.TotalBytes > 0 {
		fraction := videoFraction(float64(update.DownloadedBytes), float64(update.TotalBytes))
		if t.throttle.next(fraction) {
			t.sink.Progress(fraction)
		}
	}
}

func (t *videoTracker) filename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file
}

func (t *videoTracker) title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// cleanup removes whatever yt-dlp had started writing.
func (t *videoTracker) cleanup(logger log.Logger) {
	file := t.filename()
	if file == "" {
		return
	}
	removePartial(logger, file+partSuffix)
	removePartial(logger, file+".ytdl")
	removePartial(logger, file)
}

// videoFraction maps downloaded/total to [0, 0.99].
func videoFraction(downloaded, total float64) float64 {
	if total <= 0 {
		return 0
	}
	f := downloaded / total
	if f < 0 {
		return 0
	}
	if f > 0.99 {
		return 0.99
	}
	return f
}
