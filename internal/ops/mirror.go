package ops

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

const (
	wgetSavingPrefix = "Saving to: "
	// wgetServerErrorExit is wget's "server issued an error response" status,
	// which a mirror run hits on any broken link.
	wgetServerErrorExit = 8
)

// MirrorParams describes a recursive site mirror.
type MirrorParams struct {
	URL       string
	OutputDir string
	Depth     int  // Recursion depth; 0 keeps wget's --mirror default (infinite)
	NoParent  bool // Never ascend above the starting directory
}

// Mirror copies a website with wget --mirror.
type Mirror struct {
	env    *Env
	params MirrorParams
}

// NewMirror creates a mirror operation.
func NewMirror(env *Env, params MirrorParams) *Mirror {
	return &Mirror{env: env.defaults(), params: params}
}

func (m *Mirror) Name() string { return "mirror" }

func (m *Mirror) validate() (*url.URL, error) {
	if m.params.URL == "" {
		return nil, operation.Validationf("url must not be empty")
	}
	u, err := url.Parse(m.params.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, operation.Validationf("not a web url: %q", m.params.URL)
	}
	if m.params.OutputDir == "" {
		return nil, operation.Validationf("output directory must not be empty")
	}
	if m.params.Depth < 0 {
		return nil, operation.Validationf("depth must not be negative")
	}
	if err := ensureOutputDir(m.params.OutputDir); err != nil {
		return nil, err
	}
	return u, nil
}

func (m *Mirror) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	u, err := m.validate()
	if err != nil {
		return operation.Result{}, err
	}

	logger := m.env.Logger.WithValues(log.Kv{"op": "mirror", "url": m.params.URL})
	sink.Status(fmt.Sprintf("Mirroring %s", m.params.URL))

	saved := 0
	err = runCommand(ctx, m.env.Procs, command{
		Tool: "wget",
		Path: m.env.Tools.Wget,
		Args: m.args(),
		OnLine: func(stream Stream, line string) {
			if stream != Stderr {
				return
			}
			if file, ok := parseSavingLine(line); ok {
				saved++
				sink.Status(fmt.Sprintf("Saved %d files (%s)", saved, file))
			}
		},
	})

	partial := false
	if err != nil {
		var toolErr *operation.ToolError
		if saved > 0 && errors.As(err, &toolErr) && toolErr.ExitCode == wgetServerErrorExit {
			logger.Warningf("Some links could not be fetched: %v", err)
			partial = true
		} else {
			return operation.Result{}, err
		}
	}

	sink.Progress(1.0)
	logger.Infof("Mirrored %d files into %s", saved, m.params.OutputDir)

	detail := fmt.Sprintf("%d files mirrored into %s", saved, m.params.OutputDir)
	if partial {
		detail += " (some links failed)"
	}
	return operation.Result{
		Path:   m.params.OutputDir,
		Detail: detail,
		Meta: map[string]string{
			"url":   m.params.URL,
			"host":  u.Host, // wget names the directory host:port for non-default ports
			"files": strconv.Itoa(saved),
		},
	}, nil
}

func (m *Mirror) args() []string {
	args := []string{
		"--mirror",
		"--convert-links",
		"--adjust-extension",
		"--page-requisites",
		"--directory-prefix=" + m.params.OutputDir,
	}
	if m.params.NoParent {
		args = append(args, "--no-parent")
	}
	if m.params.Depth > 0 {
		args = append(args, "--level="+strconv.Itoa(m.params.Depth))
	}
	return append(args, m.params.URL)
}

// parseSavingLine extracts the file name from a wget "Saving to:" line.
func parseSavingLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, wgetSavingPrefix) {
		return "", false
	}
	file := strings.TrimPrefix(line, wgetSavingPrefix)
	file = strings.Trim(file, "'\"`‘’“”")
	if file == "" {
		return "", false
	}
	return filepath.Base(file), true
}
