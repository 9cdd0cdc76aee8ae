package worker

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
	"github.com/jmylchreest/proofreel/internal/storage"
)

// Results recorded for clean-preview jobs that had nothing to do.
const (
	ResultVideoMissing = "skipped: video not found"
	ResultNotApproved  = "skipped: video not approved"
)

// CleanPreviewHandler renders an unwatermarked preview for an approved video.
type CleanPreviewHandler struct {
	deps    Deps
	videos  repository.VideoRepository
	threads int
}

// NewCleanPreviewHandler creates the handler.
func NewCleanPreviewHandler(deps Deps, videos repository.VideoRepository, threads int) *CleanPreviewHandler {
	return &CleanPreviewHandler{deps: deps, videos: videos, threads: threads}
}

// Handle implements queue.Handler. Approval is read from the database, not
// the payload, so a revoke between enqueue and claim turns the job into a
// no-op.
func (h *CleanPreviewHandler) Handle(ctx context.Context, d *queue.Delivery, p queue.CleanPreviewPayload) (string, error) {
	logger := observability.LoggerFromContext(ctx)

	video, err := h.videos.GetByID(ctx, p.VideoID)
	if err != nil {
		return "", err
	}
	if video == nil {
		logger.Info("clean preview skipped, video not found", slog.String("video_id", p.VideoID))
		return ResultVideoMissing, nil
	}
	if !video.Approved {
		logger.Info("clean preview skipped, video not approved", slog.String("video_id", p.VideoID))
		return ResultNotApproved, nil
	}

	scope, err := h.deps.Temp.Scope(d.Job.ID.String())
	if err != nil {
		return "", err
	}
	defer scope.Cleanup()

	out, err := h.deps.render(ctx, d, scope, renderRequest{
		SourceKey:  p.SourceStoragePath,
		Resolution: p.Resolution,
		Threads:    h.threads,
	})
	if err != nil {
		return "", err
	}

	key := storage.CleanPreviewKey(p.ProjectID, p.VideoID, p.Resolution)
	if err := storage.UploadFile(ctx, h.deps.Store, key, out.Path, "video/mp4"); err != nil {
		return "", err
	}
	d.Report(progressUploaded)

	if err := h.videos.SetCleanPreviewPath(ctx, p.VideoID, p.Resolution, key); err != nil {
		return "", err
	}

	logger.Info("clean preview ready",
		slog.String("video_id", p.VideoID),
		slog.String("resolution", string(p.Resolution)),
		slog.String("key", key))
	return key, nil
}

// OnTerminalFailure only logs. The watermarked preview and the approval
// stay as they are; the clean preview can be retried from the jobs admin.
func (h *CleanPreviewHandler) OnTerminalFailure(_ context.Context, job *models.Job, p queue.CleanPreviewPayload, cause error) {
	h.deps.logger().Error("clean preview failed permanently",
		slog.String("video_id", p.VideoID),
		slog.String("resolution", string(p.Resolution)),
		slog.String("job_id", job.ID.String()),
		slog.String("error", cause.Error()))
}

var (
	_ queue.Handler[queue.CleanPreviewPayload]                = (*CleanPreviewHandler)(nil)
	_ queue.TerminalFailureHandler[queue.CleanPreviewPayload] = (*CleanPreviewHandler)(nil)
)
