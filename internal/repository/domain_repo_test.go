package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRepo_Lifecycle(t *testing.T) {
	repo := NewVideoRepository(setupTestDB(t))
	ctx := context.Background()

	video := &models.Video{Record: models.Record{ID: "v1"}, ProjectID: "p1", SourceStoragePath: "uploads/p1/v1.mov"}
	require.NoError(t, repo.Create(ctx, video))
	assert.Equal(t, models.StatusProcessing, video.Status)

	require.NoError(t, repo.SetProgress(ctx, "v1", 55))
	require.NoError(t, repo.MarkReady(ctx, "v1", VideoReady{
		PreviewPath:     "projects/p1/videos/v1/preview-720p.mp4",
		Width:           1280,
		Height:          720,
		DurationSeconds: 12.5,
		FrameRate:       25,
	}))

	got, err := repo.GetByID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusReady, got.Status)
	require.NotNil(t, got.PreviewPath)
	assert.Equal(t, "projects/p1/videos/v1/preview-720p.mp4", *got.PreviewPath)
	assert.Equal(t, 100, got.ProcessingProgress)
	assert.Equal(t, 1280, got.Width)
	assert.Nil(t, got.ProcessingError)

	// A redelivered job writes the same values again.
	require.NoError(t, repo.MarkReady(ctx, "v1", VideoReady{PreviewPath: "projects/p1/videos/v1/preview-720p.mp4", Width: 1280, Height: 720}))

	require.NoError(t, repo.MarkError(ctx, "v1", "probe failed"))
	got, err = repo.GetByID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "probe failed", *got.ProcessingError)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVideoRepo_ApprovalAndCleanPreview(t *testing.T) {
	repo := NewVideoRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Video{Record: models.Record{ID: "v1"}, ProjectID: "p1", SourceStoragePath: "s"}))

	found, err := repo.SetApproved(ctx, "v1", true)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.SetApproved(ctx, "ghost", true)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.SetCleanPreviewPath(ctx, "v1", models.Resolution1080p, "projects/p1/videos/v1/preview-clean-1080p.mp4"))
	assert.ErrorIs(t, repo.SetCleanPreviewPath(ctx, "v1", "4k", "x"), models.ErrInvalidResolution)

	got, err := repo.GetByID(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.Nil(t, got.CleanPreview720Path)
	require.NotNil(t, got.CleanPreview1080Path)
	assert.Equal(t, "projects/p1/videos/v1/preview-clean-1080p.mp4", *got.CleanPreview1080Path)
	assert.Equal(t, models.StatusProcessing, got.Status, "clean preview writes leave status alone")

	videos, err := repo.List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestVideoRepo_CreateValidates(t *testing.T) {
	repo := NewVideoRepository(setupTestDB(t))
	err := repo.Create(context.Background(), &models.Video{SourceStoragePath: "s"})
	assert.ErrorIs(t, err, models.ErrProjectIDRequired)
}

func TestAssetRepo_Lifecycle(t *testing.T) {
	repo := NewAssetRepository(setupTestDB(t))
	ctx := context.Background()

	asset := &models.Asset{ProjectID: "p1", SourceStoragePath: "uploads/p1/logo.png"}
	require.NoError(t, repo.Create(ctx, asset))
	require.NotEmpty(t, asset.ID)

	thumb := "projects/p1/assets/" + asset.ID + "/thumbnail.jpg"
	require.NoError(t, repo.MarkReady(ctx, asset.ID, AssetReady{
		Category:      models.AssetCategoryImage,
		ContentType:   "image/png",
		SizeBytes:     2048,
		ThumbnailPath: &thumb,
	}))

	got, err := repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
	assert.Equal(t, models.AssetCategoryImage, got.Category)
	assert.Equal(t, int64(2048), got.SizeBytes)
	require.NotNil(t, got.ThumbnailPath)
	assert.Equal(t, thumb, *got.ThumbnailPath)

	require.NoError(t, repo.MarkProcessing(ctx, asset.ID))
	require.NoError(t, repo.MarkError(ctx, asset.ID, "category mismatch"))
	got, err = repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
}

func TestDestinationRepo(t *testing.T) {
	repo := NewDestinationRepository(setupTestDB(t))
	ctx := context.Background()

	hook := &models.NotificationDestination{Name: "ops", Kind: models.DestinationWebhook, URL: "https://hooks.example.com/a"}
	chat := &models.NotificationDestination{Name: "chat", Kind: models.DestinationApprise, URL: "discord://id/token"}
	require.NoError(t, repo.Create(ctx, hook))
	require.NoError(t, repo.Create(ctx, chat))
	assert.Error(t, repo.Create(ctx, &models.NotificationDestination{Name: "bad", Kind: "pager", URL: "x"}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "chat", all[0].Name)
	assert.True(t, all[0].IsEnabled())

	require.NoError(t, repo.SetEnabled(ctx, hook.ID, false))
	some, err := repo.GetByIDs(ctx, []string{hook.ID, "unknown"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.False(t, some[0].IsEnabled())

	none, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.Delete(ctx, chat.ID))
	all, err = repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUploadSessionRepo(t *testing.T) {
	repo := NewUploadSessionRepository(setupTestDB(t))
	ctx := context.Background()

	stale := &models.UploadSession{ChunkDir: "s1", LastActivityAt: time.Now().Add(-30 * time.Hour)}
	fresh := &models.UploadSession{ChunkDir: "s2"}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	found, err := repo.FindInactive(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)

	require.NoError(t, repo.Delete(ctx, stale.ID))
	found, err = repo.FindInactive(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSettingsRepo(t *testing.T) {
	repo := NewSettingsRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, models.SettingWatermarkText, "DRAFT"))
	require.NoError(t, repo.Set(ctx, models.SettingWatermarkText, "CLIENT REVIEW"))
	require.NoError(t, repo.Set(ctx, models.SettingCleanPreviewResolutions, "1080p"))
	assert.ErrorIs(t, repo.Set(ctx, "", "x"), models.ErrSettingKeyRequired)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		models.SettingWatermarkText:           "CLIENT REVIEW",
		models.SettingCleanPreviewResolutions: "1080p",
	}, all)
}
