package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// maxResponseSnippet bounds how much of the server reply is kept.
const maxResponseSnippet = 512

// UploadParams describes a multipart file upload.
type UploadParams struct {
	File     string
	Endpoint string
	Method   string // POST (default) or PUT
	Field    string // Form field name (default "file")
}

// Upload sends a local file to an HTTP endpoint as multipart/form-data.
type Upload struct {
	env    *Env
	params UploadParams
}

// NewUpload creates an upload operation.
func NewUpload(env *Env, params UploadParams) *Upload {
	if params.Method == "" {
		params.Method = http.MethodPost
	}
	if params.Field == "" {
		params.Field = "file"
	}
	params.Method = strings.ToUpper(params.Method)
	return &Upload{env: env.defaults(), params: params}
}

func (u *Upload) Name() string { return "upload" }

func (u *Upload) validate() (*url.URL, int64, error) {
	if u.params.File == "" {
		return nil, 0, operation.Validationf("file must not be empty")
	}
	info, err := os.Stat(u.params.File)
	if err != nil {
		return nil, 0, operation.Validationf("file does not exist: %s", u.params.File)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, operation.Validationf("%s is not a regular file", u.params.File)
	}
	if u.params.Endpoint == "" {
		return nil, 0, operation.Validationf("upload endpoint must not be empty")
	}
	endpoint, err := url.Parse(u.params.Endpoint)
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, 0, operation.Validationf("not a web url: %q", u.params.Endpoint)
	}
	if u.params.Method != http.MethodPost && u.params.Method != http.MethodPut {
		return nil, 0, operation.Validationf("unsupported upload method %q", u.params.Method)
	}
	return endpoint, info.Size(), nil
}

func (u *Upload) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	endpoint, size, err := u.validate()
	if err != nil {
		return operation.Result{}, err
	}

	logger := u.env.Logger.WithValues(log.Kv{"op": "upload", "endpoint": endpoint.String()})
	sink.Status(fmt.Sprintf("Uploading %s to %s", filepath.Base(u.params.File), endpoint.Host))

	var status, reply string
	throttle := &progressThrottle{}
	notify := func(attempt int, err error, wait time.Duration) {
		logger.Warningf("Attempt %d failed, retrying in %s: %v", attempt, wait.Round(time.Millisecond), err)
		sink.Status(fmt.Sprintf("Upload interrupted, retrying (%d)...", attempt))
	}
	err = withRetry(ctx, u.env.Breakers.Get(endpoint.Host), u.env.Retry, notify, func() error {
		var err error
		status, reply, err = u.send(ctx, endpoint, size, sink, throttle)
		return err
	})
	if err != nil {
		return operation.Result{}, err
	}

	sink.Progress(1.0)
	logger.Infof("Uploaded %s (%s): %s", u.params.File, formatBytes(size), status)

	return operation.Result{
		Path:   u.params.File,
		Detail: fmt.Sprintf("%s uploaded to %s (%s)", filepath.Base(u.params.File), endpoint.Host, status),
		Meta: map[string]string{
			"endpoint": endpoint.String(),
			"status":   status,
			"response": reply,
		},
	}, nil
}

// send performs one upload attempt.
func (u *Upload) send(ctx context.Context, endpoint *url.URL, size int64, sink operation.Sink, throttle *progressThrottle) (string, string, error) {
	f, err := os.Open(u.params.File)
	if err != nil {
		return "", "", operation.IOf(err, "opening %s", u.params.File)
	}
	defer f.Close()

	head, tail, contentType, err := multipartEnvelope(u.params.Field, filepath.Base(u.params.File))
	if err != nil {
		return "", "", operation.IOf(err, "building request body")
	}

	body := io.MultiReader(
		bytes.NewReader(head),
		&progressReader{r: f, total: size, sink: sink, throttle: throttle},
		bytes.NewReader(tail),
	)
	req, err := http.NewRequestWithContext(ctx, u.params.Method, endpoint.String(), contextReader{ctx: ctx, r: body})
	if err != nil {
		return "", "", operation.Validationf("building request: %v", err)
	}
	req.ContentLength = int64(len(head)) + size + int64(len(tail))
	req.Header.Set("Content-Type", contentType)

	resp, err := u.env.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", operation.Cancelled(ctx)
		}
		return "", "", operation.IOf(err, "sending to %s", endpoint.Host)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	if err := checkStatus(resp); err != nil {
		return "", "", err
	}
	return resp.Status, strings.TrimSpace(string(snippet)), nil
}

// multipartEnvelope returns the bytes that go before and after the file
// content of a single-file multipart body.
func multipartEnvelope(field, filename string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile(field, filename); err != nil {
		return nil, nil, "", err
	}
	headLen := buf.Len()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}

	all := buf.Bytes()
	return append([]byte(nil), all[:headLen]...), append([]byte(nil), all[headLen:]...), mw.FormDataContentType(), nil
}
