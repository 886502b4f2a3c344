package ops

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// Archive formats.
const (
	FormatZip   = "zip"
	FormatTarGz = "tar.gz"
)

// ArchiveParams describes packing a file or directory tree into one archive.
type ArchiveParams struct {
	Source string
	Output string // Derived from Source and Format when empty
	Format string // FormatZip (default) or FormatTarGz
}

// Archive packs a directory tree (or a single file) into a zip or tar.gz.
type Archive struct {
	env    *Env
	params ArchiveParams
}

// NewArchive creates an archive operation.
func NewArchive(env *Env, params ArchiveParams) *Archive {
	if params.Format == "" {
		params.Format = FormatZip
	}
	if params.Output == "" && params.Source != "" {
		params.Output = ArchiveOutputPath(params.Source, params.Format)
	}
	return &Archive{env: env.defaults(), params: params}
}

func (a *Archive) Name() string { return "archive" }

// archiveEntry is one file or directory to pack.
type archiveEntry struct {
	path string // On disk
	name string // Inside the archive, slash separated
	info fs.FileInfo
}

func (a *Archive) validate() error {
	if a.params.Source == "" {
		return operation.Validationf("source must not be empty")
	}
	if a.params.Format != FormatZip && a.params.Format != FormatTarGz {
		return operation.Validationf("unsupported archive format %q (want %s or %s)", a.params.Format, FormatZip, FormatTarGz)
	}
	if _, err := os.Stat(a.params.Source); err != nil {
		return operation.Validationf("source does not exist: %s", a.params.Source)
	}
	src, err := filepath.Abs(a.params.Source)
	if err != nil {
		return operation.Validationf("resolving %s: %v", a.params.Source, err)
	}
	out, err := filepath.Abs(a.params.Output)
	if err != nil {
		return operation.Validationf("resolving %s: %v", a.params.Output, err)
	}
	if out == src || strings.HasPrefix(out, src+string(filepath.Separator)) {
		return operation.Validationf("archive %s must not be inside %s", a.params.Output, a.params.Source)
	}
	return checkOutputFile(a.params.Output)
}

func (a *Archive) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	if err := a.validate(); err != nil {
		return operation.Result{}, err
	}

	logger := a.env.Logger.WithValues(log.Kv{"op": "archive", "source": a.params.Source})
	sink.Status(fmt.Sprintf("Scanning %s", a.params.Source))

	entries, total, err := collectEntries(ctx, a.params.Source)
	if err != nil {
		return operation.Result{}, err
	}

	part := a.params.Output + partSuffix
	sink.Status(fmt.Sprintf("Packing %d files into %s", countFiles(entries), filepath.Base(a.params.Output)))
	if err := a.write(ctx, part, entries, total, sink); err != nil {
		removePartial(logger, part)
		return operation.Result{}, err
	}

	info, err := os.Stat(part)
	if err != nil {
		removePartial(logger, part)
		return operation.Result{}, operation.IOf(err, "checking %s", part)
	}
	if err := os.Rename(part, a.params.Output); err != nil {
		removePartial(logger, part)
		return operation.Result{}, operation.IOf(err, "moving archive into place")
	}

	sink.Progress(1.0)
	logger.Infof("Packed %d files (%s) into %s", countFiles(entries), formatBytes(total), a.params.Output)

	return operation.Result{
		Path:   a.params.Output,
		Detail: fmt.Sprintf("%s (%d files, %s)", a.params.Output, countFiles(entries), formatBytes(info.Size())),
		Meta: map[string]string{
			"source": a.params.Source,
			"format": a.params.Format,
			"files":  strconv.Itoa(countFiles(entries)),
		},
	}, nil
}

// write packs entries into the file at dst.
func (a *Archive) write(ctx context.Context, dst string, entries []archiveEntry, total int64, sink operation.Sink) error {
	f, err := os.Create(dst)
	if err != nil {
		return operation.IOf(err, "creating %s", dst)
	}

	counter := &byteCounter{total: total, sink: sink}
	var writeErr error
	switch a.params.Format {
	case FormatTarGz:
		writeErr = writeTarGz(ctx, f, entries, counter)
	default:
		writeErr = writeZip(ctx, f, entries, counter)
	}

	if closeErr := f.Close(); writeErr == nil && closeErr != nil {
		writeErr = operation.IOf(closeErr, "writing %s", dst)
	}
	return writeErr
}

func writeZip(ctx context.Context, w io.Writer, entries []archiveEntry, counter *byteCounter) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if ctx.Err() != nil {
			return operation.Cancelled(ctx)
		}

		hdr, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return operation.IOf(err, "building header for %s", e.path)
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Name += "/"
		} else {
			hdr.Method = zip.Deflate
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return operation.IOf(err, "adding %s", e.name)
		}
		if e.info.IsDir() {
			continue
		}
		if err := copyFile(ctx, fw, e.path, counter); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return operation.IOf(err, "finishing zip")
	}
	return nil
}

func writeTarGz(ctx context.Context, w io.Writer, entries []archiveEntry, counter *byteCounter) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if ctx.Err() != nil {
			return operation.Cancelled(ctx)
		}

		hdr, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return operation.IOf(err, "building header for %s", e.path)
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return operation.IOf(err, "adding %s", e.name)
		}
		if e.info.IsDir() {
			continue
		}
		if err := copyFile(ctx, tw, e.path, counter); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return operation.IOf(err, "finishing tar")
	}
	if err := gz.Close(); err != nil {
		return operation.IOf(err, "finishing gzip")
	}
	return nil
}

func copyFile(ctx context.Context, w io.Writer, path string, counter *byteCounter) error {
	f, err := os.Open(path)
	if err != nil {
		return operation.IOf(err, "opening %s", path)
	}
	defer f.Close()

	_, err = io.Copy(w, contextReader{ctx: ctx, r: io.TeeReader(f, counter)})
	if ctx.Err() != nil {
		return operation.Cancelled(ctx)
	}
	if err != nil {
		return operation.IOf(err, "packing %s", path)
	}
	return nil
}

// collectEntries walks source and returns what to pack plus the total file size.
// Only regular files and directories are packed.
func collectEntries(ctx context.Context, source string) ([]archiveEntry, int64, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, 0, operation.IOf(err, "reading %s", source)
	}
	if !info.IsDir() {
		return []archiveEntry{{path: source, name: filepath.Base(source), info: info}}, info.Size(), nil
	}

	root := filepath.Base(filepath.Clean(source))
	var entries []archiveEntry
	var total int64
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return operation.Cancelled(ctx)
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		name := root
		if rel != "." {
			name = root + "/" + filepath.ToSlash(rel)
		}
		entries = append(entries, archiveEntry{path: p, name: name, info: fi})
		if fi.Mode().IsRegular() {
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		if operation.IsCancelled(err) {
			return nil, 0, err
		}
		return nil, 0, operation.IOf(err, "scanning %s", source)
	}
	return entries, total, nil
}

func countFiles(entries []archiveEntry) int {
	n := 0
	for _, e := range entries {
		if !e.info.IsDir() {
			n++
		}
	}
	return n
}

// byteCounter reports packed bytes as a fraction of total.
type byteCounter struct {
	total    int64
	done     int64
	sink     operation.Sink
	throttle progressThrottle
}

func (c *byteCounter) Write(p []byte) (int, error) {
	c.done += int64(len(p))
	if c.total > 0 {
		fraction := float64(c.done) / float64(c.total)
		if fraction > 0.99 {
			fraction = 0.99
		}
		if c.throttle.next(fraction) {
			c.sink.Progress(fraction)
		}
	}
	return len(p), nil
}

// ArchiveOutputPath derives the default archive path for source.
func ArchiveOutputPath(source, format string) string {
	ext := "." + FormatZip
	if format == FormatTarGz {
		ext = "." + FormatTarGz
	}
	return filepath.Clean(source) + ext
}
