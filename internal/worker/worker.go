// Package worker holds the job handlers behind the four pools: transcode,
// asset, clean preview and notification. Handlers are plain values wired
// with their collaborators; the queue package owns claiming, retries and
// progress persistence.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jmylchreest/proofreel/internal/ffmpeg"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/settings"
	"github.com/jmylchreest/proofreel/internal/storage"
	"github.com/jmylchreest/proofreel/internal/tempfiles"
)

// Encoder is the media toolchain as the handlers use it.
type Encoder interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	Transcode(ctx context.Context, req ffmpeg.TranscodeRequest, progress chan<- int) error
	Thumbnail(ctx context.Context, req ffmpeg.ThumbnailRequest) error
}

// SettingsSource provides the current settings snapshot.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Snapshot, error)
}

// EventPublisher enqueues notification jobs. *queue.Queue[queue.NotificationPayload]
// satisfies it.
type EventPublisher interface {
	Enqueue(ctx context.Context, payload queue.NotificationPayload) (*queue.Handle, error)
}

// Deps are the collaborators shared by the media handlers.
type Deps struct {
	Store    storage.Client
	Encoder  Encoder
	Temp     *tempfiles.Manager
	Settings SettingsSource
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// renderRequest is one preview rendition of a stored source.
type renderRequest struct {
	SourceKey  string
	Resolution models.Resolution
	Watermark  string
	Threads    int
	// OnProgress, if set, receives the overall job percentage.
	OnProgress func(percent int)
}

// rendered is a finished rendition on local disk.
type rendered struct {
	Path   string
	Source *ffmpeg.MediaInfo
	Width  int
	Height int
}

// Progress milestones for a render. The encoder's own percentage is
// mapped onto the range between probed and encoded.
const (
	progressDownloaded = 5
	progressProbed     = 10
	progressEncoded    = 90
	progressUploaded   = 95
)

// render downloads, probes and encodes req.SourceKey into scope. The caller
// uploads the result.
func (d Deps) render(ctx context.Context, delivery *queue.Delivery, scope *tempfiles.Scope, req renderRequest) (*rendered, error) {
	report := func(pct int) {
		delivery.Report(pct)
		if req.OnProgress != nil {
			req.OnProgress(pct)
		}
	}

	input := scope.Path(tempfiles.PurposeInput, sourceExt(req.SourceKey))
	if _, err := storage.DownloadToFile(ctx, d.Store, req.SourceKey, input); err != nil {
		return nil, fmt.Errorf("downloading source: %w", err)
	}
	report(progressDownloaded)

	info, err := d.Encoder.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("probing source: %w", err)
	}
	report(progressProbed)

	srcW, srcH := info.DisplaySize()
	width, height := ffmpeg.FitInside(srcW, srcH, ffmpeg.BoxFor(req.Resolution))

	output := scope.Path(tempfiles.PurposeOutput, ".mp4")
	progress := make(chan int, 4)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for pct := range progress {
			report(progressProbed + pct*(progressEncoded-progressProbed)/100)
		}
	}()

	err = d.Encoder.Transcode(ctx, ffmpeg.TranscodeRequest{
		Input:     input,
		Output:    output,
		Width:     width,
		Height:    height,
		Threads:   req.Threads,
		Watermark: req.Watermark,
		Duration:  info.Duration(),
	}, progress)
	close(progress)
	<-relayDone
	if err != nil {
		return nil, fmt.Errorf("encoding %s preview: %w", req.Resolution, err)
	}
	report(progressEncoded)

	return &rendered{Path: output, Source: info, Width: width, Height: height}, nil
}

// sourceExt keeps the source extension so ffmpeg's format probing has a
// hint. Unknown or odd extensions are dropped.
func sourceExt(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// publish enqueues a notification, logging instead of failing the job when
// the queue is unavailable.
func publish(ctx context.Context, events EventPublisher, logger *slog.Logger, payload queue.NotificationPayload) {
	if events == nil {
		return
	}
	if _, err := events.Enqueue(ctx, payload); err != nil {
		logger.Warn("failed to enqueue notification",
			slog.String("event_type", payload.EventType),
			slog.String("subject_id", payload.SubjectID),
			slog.String("error", err.Error()))
	}
}
