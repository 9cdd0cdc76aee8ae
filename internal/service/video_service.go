package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// RegisterVideoInput describes an uploaded video.
type RegisterVideoInput struct {
	// ID is optional; a ULID is assigned when empty.
	ID                string
	ProjectID         string
	Title             string
	SourceStoragePath string
}

// VideoService registers videos and drives the approval flow.
type VideoService struct {
	videos        repository.VideoRepository
	transcodes    Enqueuer[queue.TranscodePayload]
	cleanPreviews Enqueuer[queue.CleanPreviewPayload]
	settings      SettingsReader
	logger        *slog.Logger
}

// NewVideoService creates a new VideoService.
func NewVideoService(
	videos repository.VideoRepository,
	transcodes Enqueuer[queue.TranscodePayload],
	cleanPreviews Enqueuer[queue.CleanPreviewPayload],
	settings SettingsReader,
) *VideoService {
	return &VideoService{
		videos:        videos,
		transcodes:    transcodes,
		cleanPreviews: cleanPreviews,
		settings:      settings,
		logger:        slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *VideoService) WithLogger(logger *slog.Logger) *VideoService {
	s.logger = logger
	return s
}

// Register creates the video record in PROCESSING and enqueues its
// transcode job. A failed enqueue marks the video errored so it does not
// sit in PROCESSING forever.
func (s *VideoService) Register(ctx context.Context, in RegisterVideoInput) (*models.Video, *queue.Handle, error) {
	video := &models.Video{
		Record:            models.Record{ID: in.ID},
		ProjectID:         in.ProjectID,
		Title:             in.Title,
		SourceStoragePath: in.SourceStoragePath,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, nil, err
	}

	handle, err := s.transcodes.Enqueue(ctx, queue.TranscodePayload{
		VideoID:           video.ID,
		ProjectID:         video.ProjectID,
		SourceStoragePath: video.SourceStoragePath,
	})
	if err != nil {
		if markErr := s.videos.MarkError(ctx, video.ID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark video errored",
				slog.String("video_id", video.ID),
				slog.String("error", markErr.Error()))
		}
		return video, nil, fmt.Errorf("enqueueing transcode: %w", err)
	}

	s.logger.InfoContext(ctx, "video registered",
		slog.String("video_id", video.ID),
		slog.String("project_id", video.ProjectID),
		slog.String("job_id", handle.ID.String()))
	return video, handle, nil
}

// Reprocess resets a video to PROCESSING and enqueues a fresh transcode.
func (s *VideoService) Reprocess(ctx context.Context, id string) (*queue.Handle, error) {
	video, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.videos.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	handle, err := s.transcodes.Enqueue(ctx, queue.TranscodePayload{
		VideoID:           video.ID,
		ProjectID:         video.ProjectID,
		SourceStoragePath: video.SourceStoragePath,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing transcode: %w", err)
	}
	return handle, nil
}

// Approve marks the video approved and enqueues one clean preview job per
// resolution enabled in settings. Approving twice enqueues twice; the
// clean preview handler writes the same object both times.
func (s *VideoService) Approve(ctx context.Context, id string) ([]*queue.Handle, error) {
	video, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	found, err := s.videos.SetApproved(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}

	var (
		handles []*queue.Handle
		errs    []error
	)
	for _, res := range snap.CleanPreviewResolutions {
		h, err := s.cleanPreviews.Enqueue(ctx, queue.CleanPreviewPayload{
			VideoID:           video.ID,
			ProjectID:         video.ProjectID,
			SourceStoragePath: video.SourceStoragePath,
			Resolution:        res,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueueing %s clean preview: %w", res, err))
			continue
		}
		handles = append(handles, h)
	}

	s.logger.InfoContext(ctx, "video approved",
		slog.String("video_id", id),
		slog.Int("clean_preview_jobs", len(handles)))
	return handles, errors.Join(errs...)
}

// Revoke clears approval. Clean preview jobs still queued become no-ops.
func (s *VideoService) Revoke(ctx context.Context, id string) error {
	found, err := s.videos.SetApproved(ctx, id, false)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}
	s.logger.InfoContext(ctx, "video approval revoked", slog.String("video_id", id))
	return nil
}

// Get returns the video or ErrVideoNotFound.
func (s *VideoService) Get(ctx context.Context, id string) (*models.Video, error) {
	return s.get(ctx, id)
}

// List returns the videos of a project, or all videos when projectID is empty.
func (s *VideoService) List(ctx context.Context, projectID string) ([]*models.Video, error) {
	return s.videos.List(ctx, projectID)
}

func (s *VideoService) get(ctx context.Context, id string) (*models.Video, error) {
	video, err := s.videos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}
	return video, nil
}
