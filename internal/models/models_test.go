package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULID_TextRoundTrip(t *testing.T) {
	id := NewULID()
	data, err := json.Marshal(struct {
		ID ULID `json:"id"`
	}{id})
	require.NoError(t, err)

	var out struct {
		ID ULID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out.ID)

	var zero ULID
	require.NoError(t, zero.Scan(nil))
	assert.True(t, zero.IsZero())
	assert.Error(t, zero.Scan(42))
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(" 1080P ")
	require.NoError(t, err)
	assert.Equal(t, Resolution1080p, r)

	_, err = ParseResolution("4k")
	assert.ErrorIs(t, err, ErrInvalidResolution)

	w, h := Resolution720p.BoundingBox()
	assert.Equal(t, []int{1280, 720}, []int{w, h})
	assert.Equal(t, "clean_preview_1080_path", CleanPreviewColumn(Resolution1080p))
	assert.Equal(t, "clean_preview_720_path", CleanPreviewColumn(Resolution720p))
}

func TestVideo_CleanPreviewPath(t *testing.T) {
	v := &Video{CleanPreview1080Path: StringPtr("a")}
	assert.Nil(t, v.CleanPreviewPath(Resolution720p))
	assert.Equal(t, "a", *v.CleanPreviewPath(Resolution1080p))
}

func TestAsset_Validate(t *testing.T) {
	bad := AssetCategory("spreadsheet")
	tests := []struct {
		name  string
		asset Asset
		want  error
	}{
		{"missing project", Asset{SourceStoragePath: "x"}, ErrProjectIDRequired},
		{"missing source", Asset{ProjectID: "p"}, ErrSourcePathRequired},
		{"bad expected category", Asset{ProjectID: "p", SourceStoragePath: "x", ExpectedCategory: &bad}, ErrInvalidAssetCategory},
		{"valid", Asset{ProjectID: "p", SourceStoragePath: "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asset.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.True(t, AssetCategoryImage.HasThumbnail())
	assert.False(t, AssetCategoryDocument.HasThumbnail())
}

func TestNotificationDestination_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dest    NotificationDestination
		wantErr bool
	}{
		{"webhook", NotificationDestination{Name: "ops", Kind: DestinationWebhook, URL: "https://hooks.example.com/x"}, false},
		{"apprise", NotificationDestination{Name: "chat", Kind: DestinationApprise, URL: "discord://id/token"}, false},
		{"relative webhook", NotificationDestination{Name: "ops", Kind: DestinationWebhook, URL: "/hook"}, true},
		{"blank url", NotificationDestination{Name: "ops", Kind: DestinationWebhook, URL: "  "}, true},
		{"unknown kind", NotificationDestination{Name: "ops", Kind: "sms", URL: "https://x"}, true},
		{"no name", NotificationDestination{Kind: DestinationWebhook, URL: "https://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dest.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.True(t, (&NotificationDestination{}).IsEnabled())
	assert.False(t, (&NotificationDestination{Enabled: BoolPtr(false)}).IsEnabled())
}
