// Package ops contains the concrete operations fetchdeck runs: HTTP download,
// video fetch, transcode, site mirror, archive and upload.
//
// Every operation validates its parameters before emitting any event, reports
// progress through an operation.Sink and removes its partial output when it
// fails or is cancelled.
package ops

import (
	"net/http"

	"github.com/aristath/fetchdeck/internal/log"
)

// Tools holds the external binaries operations shell out to.
type Tools struct {
	FFmpeg  string
	FFprobe string
	Wget    string
	YtDlp   string // Empty means the yt-dlp found on PATH
}

// DefaultTools returns the binaries looked up on PATH.
func DefaultTools() Tools {
	return Tools{
		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
		Wget:    "wget",
	}
}

// Env is the shared infrastructure operations run against.
type Env struct {
	Logger   log.Logger
	Tools    Tools
	Procs    *ProcessManager
	Breakers *BreakerRegistry
	Retry    RetryConfig
	Client   *http.Client
}

// NewEnv returns an Env with every field populated with defaults.
func NewEnv(logger log.Logger) *Env {
	if logger == nil {
		logger = log.Noop
	}
	return &Env{
		Logger:   logger,
		Tools:    DefaultTools(),
		Procs:    NewProcessManager(),
		Breakers: NewBreakerRegistry(DefaultBreakerConfig(), logger),
		Retry:    DefaultRetryConfig(),
		Client:   &http.Client{},
	}
}

// defaults fills the zero fields of a caller-built Env.
func (e *Env) defaults() *Env {
	if e == nil {
		return NewEnv(nil)
	}
	c := *e
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	d := DefaultTools()
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = d.FFmpeg
	}
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = d.FFprobe
	}
	if c.Tools.Wget == "" {
		c.Tools.Wget = d.Wget
	}
	if c.Procs == nil {
		c.Procs = NewProcessManager()
	}
	if c.Breakers == nil {
		c.Breakers = NewBreakerRegistry(DefaultBreakerConfig(), c.Logger)
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	return &c
}

// progressStep is the minimum fraction change reported between two progress events.
const progressStep = 0.01

// progressThrottle drops progress reports that move less than progressStep.
// Since it compares against the last reported fraction, it also drops any
// report that would move backwards.
type progressThrottle struct {
	last     float64
	reported bool
}

// next reports whether fraction should be emitted.
func (p *progressThrottle) next(fraction float64) bool {
	if p.reported && fraction < 1.0 && fraction-p.last < progressStep {
		return false
	}
	p.last = fraction
	p.reported = true
	return true
}
