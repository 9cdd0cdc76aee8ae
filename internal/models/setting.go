package models

// Well-known setting keys.
const (
	// SettingWatermarkText is the text burned into review previews.
	SettingWatermarkText = "watermark_text"
	// SettingCleanPreviewResolutions is a comma-separated list of resolutions
	// rendered after approval.
	SettingCleanPreviewResolutions = "clean_preview_resolutions"
)

// Setting is an operator-editable key/value pair.
type Setting struct {
	Key       string `gorm:"primarykey;size:128" json:"key"`
	Value     string `gorm:"type:text" json:"value"`
	UpdatedAt Time   `json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
