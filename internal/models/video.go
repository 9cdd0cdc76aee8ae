package models

import (
	"fmt"
	"strings"
)

// ProcessingStatus is the lifecycle state of a video or asset rendition.
type ProcessingStatus string

const (
	// StatusProcessing means a job is (or will be) working on the record.
	StatusProcessing ProcessingStatus = "PROCESSING"
	// StatusReady means the renditions are available.
	StatusReady ProcessingStatus = "READY"
	// StatusError means the last job exhausted its retries.
	StatusError ProcessingStatus = "ERROR"
)

// Resolution is a preview preset.
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// ParseResolution parses "720p" or "1080p" (case-insensitive).
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case Resolution720p, Resolution1080p:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
}

// Valid reports whether r is a supported preset.
func (r Resolution) Valid() bool {
	return r == Resolution720p || r == Resolution1080p
}

// BoundingBox returns the landscape box a rendition must fit inside.
// Portrait sources use the transposed box.
func (r Resolution) BoundingBox() (width, height int) {
	if r == Resolution1080p {
		return 1920, 1080
	}
	return 1280, 720
}

// Video is an uploaded video and its renditions.
type Video struct {
	Record

	ProjectID         string           `gorm:"not null;size:64;index" json:"project_id"`
	Title             string           `gorm:"size:255" json:"title,omitempty"`
	SourceStoragePath string           `gorm:"not null;size:1024" json:"source_storage_path"`
	Status            ProcessingStatus `gorm:"not null;size:20;default:'PROCESSING';index" json:"status"`

	// Approved gates clean preview rendering. Clean-preview jobs re-read it
	// before doing any work.
	Approved bool `gorm:"not null;default:false" json:"approved"`

	PreviewPath          *string `gorm:"size:1024" json:"preview_path,omitempty"`
	CleanPreview720Path  *string `gorm:"column:clean_preview_720_path;size:1024" json:"clean_preview_720_path,omitempty"`
	CleanPreview1080Path *string `gorm:"column:clean_preview_1080_path;size:1024" json:"clean_preview_1080_path,omitempty"`
	ProcessingError      *string `gorm:"size:4096" json:"processing_error,omitempty"`
	ProcessingProgress   int     `gorm:"default:0" json:"processing_progress"`

	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	FrameRate       float64 `json:"frame_rate,omitempty"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// CleanPreviewColumn returns the column holding the clean preview path for r.
func CleanPreviewColumn(r Resolution) string {
	if r == Resolution1080p {
		return "clean_preview_1080_path"
	}
	return "clean_preview_720_path"
}

// CleanPreviewPath returns the stored clean preview path for r, if any.
func (v *Video) CleanPreviewPath(r Resolution) *string {
	if r == Resolution1080p {
		return v.CleanPreview1080Path
	}
	return v.CleanPreview720Path
}

// Validate performs basic validation on the video.
func (v *Video) Validate() error {
	if v.ProjectID == "" {
		return ErrProjectIDRequired
	}
	if v.SourceStoragePath == "" {
		return ErrSourcePathRequired
	}
	return nil
}
