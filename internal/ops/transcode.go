package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// ffmpeg/ffprobe invocation constants.
const (
	FastStartFlag       = "+faststart"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimePrefix  = "out_time_us="
	TranscodedSuffix    = "-transcoded"
	OutputExtensionMP4  = ".mp4"
)

// Preset holds the encoder settings for a transcode.
type Preset struct {
	VideoCodec   string `json:"video_codec"`
	Speed        string `json:"speed"`
	CRF          int    `json:"crf"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
}

// DefaultPreset returns H.264/AAC settings suitable for most players.
func DefaultPreset() Preset {
	return Preset{
		VideoCodec:   "libx264",
		Speed:        "medium",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

// TranscodeParams describes an ffmpeg transcode.
type TranscodeParams struct {
	Input  string
	Output string // Derived from Input when empty
	Preset Preset
}

// Transcode re-encodes a media file with ffmpeg.
type Transcode struct {
	env    *Env
	params TranscodeParams
}

// NewTranscode creates a transcode operation.
func NewTranscode(env *Env, params TranscodeParams) *Transcode {
	if params.Preset == (Preset{}) {
		params.Preset = DefaultPreset()
	}
	if params.Output == "" && params.Input != "" {
		params.Output = TranscodeOutputPath(params.Input)
	}
	return &Transcode{env: env.defaults(), params: params}
}

func (t *Transcode) Name() string { return "transcode" }

func (t *Transcode) validate() error {
	if t.params.Input == "" {
		return operation.Validationf("input file must not be empty")
	}
	info, err := os.Stat(t.params.Input)
	if err != nil {
		return operation.Validationf("input file does not exist: %s", t.params.Input)
	}
	if info.IsDir() {
		return operation.Validationf("input %s is a directory", t.params.Input)
	}
	if filepath.Clean(t.params.Input) == filepath.Clean(t.params.Output) {
		return operation.Validationf("output must differ from input")
	}
	if t.params.Preset.CRF < 0 || t.params.Preset.CRF > 51 {
		return operation.Validationf("crf %d out of range 0-51", t.params.Preset.CRF)
	}
	return checkOutputFile(t.params.Output)
}

func (t *Transcode) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	if err := t.validate(); err != nil {
		return operation.Result{}, err
	}

	logger := t.env.Logger.WithValues(log.Kv{"op": "transcode", "input": t.params.Input})
	sink.Status(fmt.Sprintf("Probing %s", filepath.Base(t.params.Input)))

	duration, err := t.probeDuration(ctx)
	if err != nil {
		return operation.Result{}, err
	}
	logger.Debugf("Input duration %.2fs", duration)

	part := transcodePartPath(t.params.Output)
	sink.Status(fmt.Sprintf("Transcoding to %s", filepath.Base(t.params.Output)))
	var throttle progressThrottle
	err = runCommand(ctx, t.env.Procs, command{
		Tool: "ffmpeg",
		Path: t.env.Tools.FFmpeg,
		Args: BuildFFmpegArgs(t.params.Input, part, t.params.Preset),
		OnLine: func(stream Stream, line string) {
			if stream != Stderr {
				return
			}
			fraction, ok := parseProgressLine(line, duration)
			if ok && throttle.next(fraction) {
				sink.Progress(fraction)
			}
		},
	})
	if err != nil {
		removePartial(logger, part)
		return operation.Result{}, err
	}
	if err := os.Rename(part, t.params.Output); err != nil {
		removePartial(logger, part)
		return operation.Result{}, operation.IOf(err, "moving output into place")
	}

	sink.Progress(1.0)
	logger.Infof("Transcoded to %s", t.params.Output)

	return operation.Result{
		Path:   t.params.Output,
		Detail: t.params.Output,
		Meta: map[string]string{
			"input":    t.params.Input,
			"duration": strconv.FormatFloat(duration, 'f', 2, 64),
		},
	}, nil
}

// probeDuration asks ffprobe for the input duration in seconds.
func (t *Transcode) probeDuration(ctx context.Context) (float64, error) {
	var out strings.Builder
	err := runCommand(ctx, t.env.Procs, command{
		Tool: "ffprobe",
		Path: t.env.Tools.FFprobe,
		Args: []string{"-v", FFprobeLogLevel, "-show_entries", FFprobeShowEntries, "-of", FFprobeOutputFormat, t.params.Input},
		OnLine: func(stream Stream, line string) {
			if stream == Stdout && out.Len() == 0 {
				out.WriteString(strings.TrimSpace(line))
			}
		},
	})
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(out.String(), 64)
	if err != nil {
		return 0, &operation.ToolError{Tool: "ffprobe", ExitCode: 0, Output: out.String(), Err: fmt.Errorf("failed to parse duration: %w", err)}
	}
	return duration, nil
}

// BuildFFmpegArgs builds the ffmpeg command arguments.
func BuildFFmpegArgs(input, output string, p Preset) []string {
	return []string{
		"-y",
		"-i", input,
		"-c:v", p.VideoCodec,
		"-preset", p.Speed,
		"-crf", strconv.Itoa(p.CRF),
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-movflags", FastStartFlag,
		"-progress", ProgressPipeTarget,
		"-nostats",
		output,
	}
}

// parseProgressLine converts an "out_time_us=" line into a fraction of
// duration, capped below 1.0.
func parseProgressLine(line string, duration float64) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ProgressTimePrefix) || duration <= 0 {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}

	fraction := float64(us) / 1e6 / duration
	if fraction > 0.99 {
		fraction = 0.99
	}
	return fraction, true
}

// TranscodeOutputPath derives the default output path for input.
func TranscodeOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + TranscodedSuffix + OutputExtensionMP4
}

// transcodePartPath is where ffmpeg writes before the output is moved into
// place. The extension is kept last because ffmpeg picks the muxer from it.
func transcodePartPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + partSuffix + ext
}
