// Package storage moves media between the object store and local scratch
// files. Two backends are provided: a sandboxed directory and an HTTP
// object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/models"
)

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Client is the object store as the workers see it. Keys are slash
// separated and relative.
type Client interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Upload stores r under key, replacing any existing object. size may be
	// -1 when unknown.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// New builds the client selected by cfg.Backend.
func New(cfg config.StorageConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return NewFilesystem(cfg.BaseDir)
	case "http":
		return NewHTTP(cfg.HTTP, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// PreviewKey is the watermarked review preview of a video at res.
func PreviewKey(projectID, videoID string, res models.Resolution) string {
	return path.Join("projects", projectID, "videos", videoID, fmt.Sprintf("preview-%s.mp4", res))
}

// CleanPreviewKey is the unwatermarked preview of a video at res.
func CleanPreviewKey(projectID, videoID string, res models.Resolution) string {
	return path.Join("projects", projectID, "videos", videoID, fmt.Sprintf("preview-clean-%s.mp4", res))
}

// ThumbnailKey is the thumbnail of an asset.
func ThumbnailKey(projectID, assetID string) string {
	return path.Join("projects", projectID, "assets", assetID, "thumbnail.jpg")
}

// cleanKey normalizes key and rejects keys that leave the store root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage key escapes store root: %s", key)
	}
	return cleaned, nil
}

// DownloadToFile copies the object at key into dst and returns the number
// of bytes written.
func DownloadToFile(ctx context.Context, c Client, key, dst string) (int64, error) {
	body, err := c.Download(ctx, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	n, err := io.Copy(f, body)
	closeErr := f.Close()
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", key, err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("closing %s: %w", dst, closeErr)
	}
	return n, nil
}

// UploadFile uploads the local file src under key.
func UploadFile(ctx context.Context, c Client, key, src, contentType string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := c.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}
