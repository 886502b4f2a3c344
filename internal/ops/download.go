package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// partSuffix marks a file that is still being written.
const partSuffix = ".part"

// DownloadParams describes a single-file HTTP download.
type DownloadParams struct {
	URL       string
	Dest      string // Target file; derived from the URL inside OutputDir when empty
	OutputDir string
}

// Download fetches one URL to a local file.
type Download struct {
	env    *Env
	params DownloadParams
}

// NewDownload creates a download operation.
func NewDownload(env *Env, params DownloadParams) *Download {
	return &Download{env: env.defaults(), params: params}
}

func (d *Download) Name() string { return "download" }

func (d *Download) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	u, dest, err := d.validate()
	if err != nil {
		return operation.Result{}, err
	}

	logger := d.env.Logger.WithValues(log.Kv{"op": "download", "url": u.String()})
	sink.Status(fmt.Sprintf("Downloading %s", u))

	part := dest + partSuffix
	var written int64
	// Shared by every attempt so a retry never reports less than was shown.
	throttle := &progressThrottle{}
	notify := func(attempt int, err error, wait time.Duration) {
		logger.Warningf("Attempt %d failed, retrying in %s: %v", attempt, wait.Round(time.Millisecond), err)
		sink.Status(fmt.Sprintf("Download interrupted, retrying (%d)...", attempt))
	}
	err = withRetry(ctx, d.env.Breakers.Get(u.Host), d.env.Retry, notify, func() error {
		n, err := d.fetch(ctx, u, part, sink, throttle)
		written = n
		return err
	})
	if err != nil {
		removePartial(logger, part)
		return operation.Result{}, err
	}

	if err := os.Rename(part, dest); err != nil {
		removePartial(logger, part)
		return operation.Result{}, operation.IOf(err, "moving download into place")
	}

	sink.Progress(1.0)
	logger.Infof("Downloaded %d bytes to %s", written, dest)

	return operation.Result{
		Path:   dest,
		Detail: fmt.Sprintf("%s (%s)", dest, formatBytes(written)),
		Meta: map[string]string{
			"url":   u.String(),
			"bytes": strconv.FormatInt(written, 10),
		},
	}, nil
}

func (d *Download) validate() (*url.URL, string, error) {
	if d.params.URL == "" {
		return nil, "", operation.Validationf("url must not be empty")
	}
	u, err := url.Parse(d.params.URL)
	if err != nil {
		return nil, "", operation.Validationf("malformed url %q: %v", d.params.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", operation.Validationf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, "", operation.Validationf("url %q has no host", d.params.URL)
	}

	dest := d.params.Dest
	if dest == "" {
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			name = "index.html"
		}
		dest = filepath.Join(d.params.OutputDir, name)
	}
	if err := checkOutputFile(dest); err != nil {
		return nil, "", err
	}
	return u, dest, nil
}

// fetch performs one GET attempt, writing the body to part from scratch.
func (d *Download) fetch(ctx context.Context, u *url.URL, part string, sink operation.Sink, throttle *progressThrottle) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, operation.Validationf("building request: %v", err)
	}

	resp, err := d.env.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, operation.Cancelled(ctx)
		}
		return 0, operation.IOf(err, "requesting %s", u)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	f, err := os.Create(part)
	if err != nil {
		return 0, operation.IOf(err, "creating %s", part)
	}

	pr := &progressReader{r: resp.Body, total: resp.ContentLength, sink: sink, throttle: throttle}
	n, copyErr := io.Copy(f, contextReader{ctx: ctx, r: pr})
	closeErr := f.Close()

	switch {
	case ctx.Err() != nil:
		return n, operation.Cancelled(ctx)
	case copyErr != nil:
		return n, operation.IOf(copyErr, "reading response body after %s", formatBytes(n))
	case closeErr != nil:
		return n, operation.IOf(closeErr, "writing %s", part)
	case resp.ContentLength > 0 && n != resp.ContentLength:
		return n, operation.IOf(io.ErrUnexpectedEOF, "got %d of %d bytes", n, resp.ContentLength)
	}
	return n, nil
}

// progressReader reports the fraction of total read so far.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	sink     operation.Sink
	throttle *progressThrottle
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 && p.total > 0 {
		fraction := float64(p.read) / float64(p.total)
		// 1.0 is reserved for the final, successful report.
		if fraction > 0.99 {
			fraction = 0.99
		}
		if p.throttle.next(fraction) {
			p.sink.Progress(fraction)
		}
	}
	return n, err
}

// contextReader stops a copy as soon as ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}

// removePartial deletes an incomplete output file. It never removes directories.
func removePartial(logger log.Logger, p string) {
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warningf("Could not remove partial output %s: %v", p, err)
	}
}

// ensureOutputDir creates dir, reporting failure as a validation error so it
// surfaces before the operation emits anything.
func ensureOutputDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return operation.Validationf("output directory %s cannot be created: %v", dir, err)
	}
	return nil
}

// checkOutputFile rejects an output path that names an existing directory and
// makes sure its parent exists.
func checkOutputFile(p string) error {
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return operation.Validationf("output %s is a directory", p)
	}
	return ensureOutputDir(filepath.Dir(p))
}

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
