package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/proofreel/internal/config"
)

// TranscodeRequest describes one preview rendition.
type TranscodeRequest struct {
	Input  string
	Output string
	Width  int
	Height int
	// Threads caps encoder threads; zero leaves ffmpeg's default.
	Threads int
	// Watermark is burned into the centre of the frame. Empty disables it.
	Watermark string
	// Duration of the source, used to turn ffmpeg's clock into a percentage.
	Duration time.Duration
}

// ThumbnailRequest describes a single still frame.
type ThumbnailRequest struct {
	Input  string
	Output string
	// MaxWidth bounds the thumbnail width; height follows the aspect ratio.
	MaxWidth int
	// At is the seek offset for video sources. Ignored for images.
	At time.Duration
}

// Encoder renders previews and thumbnails.
type Encoder struct {
	bins   Binaries
	cfg    config.TranscodeConfig
	prober *Prober
	logger *slog.Logger
}

// NewEncoder creates an encoder using bins and the codec settings in cfg.
func NewEncoder(bins Binaries, cfg config.TranscodeConfig, probeTimeout time.Duration, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		bins:   bins,
		cfg:    cfg,
		prober: NewProber(bins.FFprobe).WithTimeout(probeTimeout),
		logger: logger,
	}
}

// Probe inspects a local source file.
func (e *Encoder) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	return e.prober.Probe(ctx, path)
}

// Transcode renders req and reports progress on progress, which may be nil.
func (e *Encoder) Transcode(ctx context.Context, req TranscodeRequest, progress chan<- int) error {
	cmd := e.transcodeCommand(req)
	e.logger.Debug("running ffmpeg", slog.String("command", cmd.String()))
	return cmd.RunWithProgress(ctx, req.Duration, progress)
}

func (e *Encoder) transcodeCommand(req TranscodeRequest) *Command {
	codec := e.cfg.VideoCodec
	if codec == "" {
		codec = "libx264"
	}

	b := NewCommandBuilder(e.bins.FFmpeg).
		HideBanner().
		Stats().
		Overwrite().
		Input(req.Input).
		VideoFilter(fmt.Sprintf("scale=%d:%d", req.Width, req.Height)).
		VideoFilter(drawtext(req.Watermark)).
		OutputArgs("-map", "0:v:0", "-map", "0:a:0?").
		VideoCodec(codec).
		VideoPreset(e.cfg.Preset).
		CRF(e.cfg.CRF).
		OutputArgs("-pix_fmt", "yuv420p").
		AudioCodec("aac").
		AudioBitrate(e.cfg.AudioBitrate).
		Threads(req.Threads).
		OutputArgs("-movflags", "+faststart").
		Output(req.Output)
	return b.Build()
}

// Thumbnail extracts one frame from a video or scales an image to a JPEG.
func (e *Encoder) Thumbnail(ctx context.Context, req ThumbnailRequest) error {
	return e.thumbnailCommand(req).Run(ctx)
}

func (e *Encoder) thumbnailCommand(req ThumbnailRequest) *Command {
	maxWidth := req.MaxWidth
	if maxWidth <= 0 {
		maxWidth = 640
	}

	b := NewCommandBuilder(e.bins.FFmpeg).HideBanner().Overwrite()
	if req.At > 0 {
		b.InputArgs("-ss", fmt.Sprintf("%.3f", req.At.Seconds()))
	}
	return b.
		Input(req.Input).
		VideoFilter(fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)).
		OutputArgs("-frames:v", "1", "-q:v", "3").
		Output(req.Output).
		Build()
}

// drawtext returns a centred semi-transparent text overlay, or "" when
// text is blank.
func drawtext(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return fmt.Sprintf("drawtext=text='%s':fontcolor=white@0.35:fontsize=h/10:x=(w-text_w)/2:y=(h-text_h)/2:borderw=2:bordercolor=black@0.25",
		escapeDrawtext(text))
}

// escapeDrawtext escapes text for a single-quoted drawtext value inside a
// filter graph.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `'\\\''`,
		`:`, `\\:`,
		`%`, `\\%`,
		`,`, `\,`,
	)
	return r.Replace(s)
}
