package models

import (
	"fmt"
	"strings"
)

// AssetCategory is the coarse media class of an asset.
type AssetCategory string

const (
	AssetCategoryVideo    AssetCategory = "video"
	AssetCategoryImage    AssetCategory = "image"
	AssetCategoryAudio    AssetCategory = "audio"
	AssetCategoryDocument AssetCategory = "document"
	AssetCategoryOther    AssetCategory = "other"
)

// ParseAssetCategory parses a category name.
func ParseAssetCategory(s string) (AssetCategory, error) {
	switch c := AssetCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case AssetCategoryVideo, AssetCategoryImage, AssetCategoryAudio, AssetCategoryDocument, AssetCategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAssetCategory, s)
}

// HasThumbnail reports whether assets of this category get a thumbnail.
func (c AssetCategory) HasThumbnail() bool {
	return c == AssetCategoryVideo || c == AssetCategoryImage
}

// Asset is a non-preview upload attached to a project.
type Asset struct {
	Record

	ProjectID         string           `gorm:"not null;size:64;index" json:"project_id"`
	Name              string           `gorm:"size:255" json:"name,omitempty"`
	SourceStoragePath string           `gorm:"not null;size:1024" json:"source_storage_path"`
	ExpectedCategory  *AssetCategory   `gorm:"size:20" json:"expected_category,omitempty"`
	Category          AssetCategory    `gorm:"size:20" json:"category,omitempty"`
	ContentType       string           `gorm:"size:255" json:"content_type,omitempty"`
	SizeBytes         int64            `json:"size_bytes,omitempty"`
	ThumbnailPath     *string          `gorm:"size:1024" json:"thumbnail_path,omitempty"`
	Status            ProcessingStatus `gorm:"not null;size:20;default:'PROCESSING';index" json:"status"`
	ProcessingError   *string          `gorm:"size:4096" json:"processing_error,omitempty"`
}

// TableName returns the table name for Asset.
func (Asset) TableName() string {
	return "assets"
}

// Validate performs basic validation on the asset.
func (a *Asset) Validate() error {
	if a.ProjectID == "" {
		return ErrProjectIDRequired
	}
	if a.SourceStoragePath == "" {
		return ErrSourcePathRequired
	}
	if a.ExpectedCategory != nil {
		if _, err := ParseAssetCategory(string(*a.ExpectedCategory)); err != nil {
			return err
		}
	}
	return nil
}
