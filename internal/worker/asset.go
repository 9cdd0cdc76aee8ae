package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jmylchreest/proofreel/internal/ffmpeg"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
	"github.com/jmylchreest/proofreel/internal/storage"
	"github.com/jmylchreest/proofreel/internal/tempfiles"
)

// ErrCategoryMismatch is returned when an asset's sniffed category differs
// from the category the uploader declared.
var ErrCategoryMismatch = errors.New("asset category mismatch")

// thumbnailWidth bounds asset thumbnails.
const thumbnailWidth = 640

// AssetHandler categorises assets and renders thumbnails for images and
// videos.
type AssetHandler struct {
	deps   Deps
	assets repository.AssetRepository
}

// NewAssetHandler creates the handler.
func NewAssetHandler(deps Deps, assets repository.AssetRepository) *AssetHandler {
	return &AssetHandler{deps: deps, assets: assets}
}

// Handle implements queue.Handler.
func (h *AssetHandler) Handle(ctx context.Context, d *queue.Delivery, p queue.AssetPayload) (string, error) {
	logger := observability.LoggerFromContext(ctx)

	scope, err := h.deps.Temp.Scope(d.Job.ID.String())
	if err != nil {
		return "", err
	}
	defer scope.Cleanup()

	input := scope.Path(tempfiles.PurposeInput, sourceExt(p.SourceStoragePath))
	size, err := storage.DownloadToFile(ctx, h.deps.Store, p.SourceStoragePath, input)
	if err != nil {
		return "", fmt.Errorf("downloading asset: %w", err)
	}
	d.Report(30)

	contentType, err := sniffFile(input, p.SourceStoragePath)
	if err != nil {
		return "", err
	}
	category := Categorize(contentType)

	if p.ExpectedCategory != nil && *p.ExpectedCategory != category {
		return "", fmt.Errorf("%w: expected %s, detected %s (%s)", ErrCategoryMismatch, *p.ExpectedCategory, category, contentType)
	}

	var thumbKey *string
	if category.HasThumbnail() {
		key, err := h.thumbnail(ctx, scope, input, category, p)
		if err != nil {
			return "", err
		}
		thumbKey = &key
	}
	d.Report(90)

	if err := h.assets.MarkReady(ctx, p.AssetID, repository.AssetReady{
		Category:      category,
		ContentType:   contentType,
		SizeBytes:     size,
		ThumbnailPath: thumbKey,
	}); err != nil {
		return "", err
	}

	logger.Info("asset ready",
		slog.String("asset_id", p.AssetID),
		slog.String("category", string(category)),
		slog.String("content_type", contentType),
		slog.Int64("size_bytes", size))
	return string(category), nil
}

func (h *AssetHandler) thumbnail(ctx context.Context, scope *tempfiles.Scope, input string, category models.AssetCategory, p queue.AssetPayload) (string, error) {
	req := ffmpeg.ThumbnailRequest{
		Input:    input,
		Output:   scope.Path(tempfiles.PurposeThumbnail, ".jpg"),
		MaxWidth: thumbnailWidth,
	}
	if category == models.AssetCategoryVideo {
		info, err := h.deps.Encoder.Probe(ctx, input)
		if err != nil {
			return "", fmt.Errorf("probing asset: %w", err)
		}
		req.At = thumbnailOffset(info.Duration())
	}

	if err := h.deps.Encoder.Thumbnail(ctx, req); err != nil {
		return "", fmt.Errorf("rendering thumbnail: %w", err)
	}

	projectID, err := h.projectFor(ctx, p)
	if err != nil {
		return "", err
	}
	key := storage.ThumbnailKey(projectID, p.AssetID)
	if err := storage.UploadFile(ctx, h.deps.Store, key, req.Output, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

// projectFor returns the payload's project, falling back to the asset row.
func (h *AssetHandler) projectFor(ctx context.Context, p queue.AssetPayload) (string, error) {
	if p.ProjectID != "" {
		return p.ProjectID, nil
	}
	asset, err := h.assets.GetByID(ctx, p.AssetID)
	if err != nil {
		return "", fmt.Errorf("loading asset %s: %w", p.AssetID, err)
	}
	if asset == nil {
		return "", fmt.Errorf("asset %s not found", p.AssetID)
	}
	return asset.ProjectID, nil
}

// thumbnailOffset picks a frame one second in, or a tenth of the way into
// clips shorter than ten seconds.
func thumbnailOffset(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return min(time.Second, d/10)
}

// OnTerminalFailure marks the asset errored.
func (h *AssetHandler) OnTerminalFailure(ctx context.Context, job *models.Job, p queue.AssetPayload, cause error) {
	if err := h.assets.MarkError(ctx, p.AssetID, cause.Error()); err != nil {
		h.deps.logger().Error("failed to mark asset errored",
			slog.String("asset_id", p.AssetID),
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
}

// extensionTypes covers containers the standard sniffer does not know.
var extensionTypes = map[string]string{
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".m4v":  "video/x-m4v",
	".mxf":  "application/mxf",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// sniffFile detects the content type from the first 512 bytes, falling back
// to the source key's extension when the bytes are inconclusive.
func sniffFile(file, key string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("opening asset: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading asset: %w", err)
	}
	return sniff(head[:n], key), nil
}

func sniff(head []byte, key string) string {
	detected := http.DetectContentType(head)
	switch mediaType(detected) {
	case "application/octet-stream", "text/plain", "application/zip":
		// inconclusive, try the extension
	default:
		return detected
	}

	ext := strings.ToLower(path.Ext(key))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return detected
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// Categorize maps a content type onto an asset category.
func Categorize(contentType string) models.AssetCategory {
	mt := mediaType(contentType)
	major, _, _ := strings.Cut(mt, "/")

	switch major {
	case "video":
		return models.AssetCategoryVideo
	case "image":
		return models.AssetCategoryImage
	case "audio":
		return models.AssetCategoryAudio
	case "text":
		return models.AssetCategoryDocument
	}

	switch {
	case mt == "application/ogg":
		return models.AssetCategoryAudio
	case mt == "application/pdf",
		mt == "application/rtf",
		mt == "application/msword",
		strings.HasPrefix(mt, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(mt, "application/vnd.oasis.opendocument."),
		strings.HasPrefix(mt, "application/vnd.ms-"):
		return models.AssetCategoryDocument
	}
	return models.AssetCategoryOther
}

var (
	_ queue.Handler[queue.AssetPayload]                = (*AssetHandler)(nil)
	_ queue.TerminalFailureHandler[queue.AssetPayload] = (*AssetHandler)(nil)
)
