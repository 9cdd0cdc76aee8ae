package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
	"github.com/jmylchreest/proofreel/internal/storage"
)

// TranscodeHandler renders the watermarked review preview of a video.
type TranscodeHandler struct {
	deps       Deps
	videos     repository.VideoRepository
	resolution models.Resolution
	threads    int
	events     EventPublisher
}

// NewTranscodeHandler creates the handler. threads is the per-job encoder
// thread budget from the resource plan.
func NewTranscodeHandler(deps Deps, videos repository.VideoRepository, resolution models.Resolution, threads int) *TranscodeHandler {
	if !resolution.Valid() {
		resolution = models.Resolution720p
	}
	return &TranscodeHandler{deps: deps, videos: videos, resolution: resolution, threads: threads}
}

// WithEvents publishes video.ready and video.failed notifications.
func (h *TranscodeHandler) WithEvents(events EventPublisher) *TranscodeHandler {
	h.events = events
	return h
}

// Handle implements queue.Handler.
func (h *TranscodeHandler) Handle(ctx context.Context, d *queue.Delivery, p queue.TranscodePayload) (string, error) {
	logger := observability.LoggerFromContext(ctx)

	scope, err := h.deps.Temp.Scope(d.Job.ID.String())
	if err != nil {
		return "", err
	}
	defer scope.Cleanup()

	snap, err := h.deps.Settings.Get(ctx)
	if err != nil {
		return "", err
	}

	lastStored := 0
	out, err := h.deps.render(ctx, d, scope, renderRequest{
		SourceKey:  p.SourceStoragePath,
		Resolution: h.resolution,
		Watermark:  snap.WatermarkText,
		Threads:    h.threads,
		OnProgress: func(pct int) {
			if pct < lastStored+10 {
				return
			}
			lastStored = pct
			if err := h.videos.SetProgress(ctx, p.VideoID, pct); err != nil {
				logger.Warn("failed to store video progress", slog.String("error", err.Error()))
			}
		},
	})
	if err != nil {
		return "", err
	}

	key := storage.PreviewKey(p.ProjectID, p.VideoID, h.resolution)
	if err := storage.UploadFile(ctx, h.deps.Store, key, out.Path, "video/mp4"); err != nil {
		return "", err
	}
	d.Report(progressUploaded)

	srcW, srcH := out.Source.DisplaySize()
	if err := h.videos.MarkReady(ctx, p.VideoID, repository.VideoReady{
		PreviewPath:     key,
		Width:           srcW,
		Height:          srcH,
		DurationSeconds: out.Source.DurationSeconds,
		FrameRate:       out.Source.FrameRate,
	}); err != nil {
		return "", err
	}

	logger.Info("preview ready",
		slog.String("video_id", p.VideoID),
		slog.String("key", key),
		slog.Int("width", out.Width),
		slog.Int("height", out.Height))

	publish(ctx, h.events, logger, queue.NotificationPayload{
		EventType: "video.ready",
		Title:     "Preview ready",
		Body:      fmt.Sprintf("The review preview for video %s is ready.", p.VideoID),
		Severity:  "success",
		SubjectID: p.VideoID,
	})

	return key, nil
}

// OnTerminalFailure marks the video errored once the attempt budget is spent.
func (h *TranscodeHandler) OnTerminalFailure(ctx context.Context, job *models.Job, p queue.TranscodePayload, cause error) {
	logger := h.deps.logger()
	if err := h.videos.MarkError(ctx, p.VideoID, cause.Error()); err != nil {
		logger.Error("failed to mark video errored",
			slog.String("video_id", p.VideoID),
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}

	publish(ctx, h.events, logger, queue.NotificationPayload{
		EventType: "video.failed",
		Title:     "Preview failed",
		Body:      fmt.Sprintf("Video %s could not be processed after %d attempts: %s", p.VideoID, job.AttemptCount, cause),
		Severity:  "failure",
		SubjectID: p.VideoID,
	})
}

var (
	_ queue.Handler[queue.TranscodePayload]                = (*TranscodeHandler)(nil)
	_ queue.TerminalFailureHandler[queue.TranscodePayload] = (*TranscodeHandler)(nil)
)
