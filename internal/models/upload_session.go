package models

// UploadSessionStatus is the state of a resumable upload.
type UploadSessionStatus string

const (
	UploadSessionActive    UploadSessionStatus = "active"
	UploadSessionCompleted UploadSessionStatus = "completed"
	UploadSessionAborted   UploadSessionStatus = "aborted"
)

// UploadSession tracks a chunked upload owned by the external upload API.
// The pipeline only reaps sessions that have gone quiet.
type UploadSession struct {
	Record

	StorageKey     string              `gorm:"size:1024" json:"storage_key"`
	ChunkDir       string              `gorm:"size:1024" json:"chunk_dir"`
	Status         UploadSessionStatus `gorm:"not null;size:20;default:'active'" json:"status"`
	ReceivedBytes  int64               `json:"received_bytes"`
	TotalBytes     int64               `json:"total_bytes"`
	LastActivityAt Time                `gorm:"not null;index" json:"last_activity_at"`
}

// TableName returns the table name for UploadSession.
func (UploadSession) TableName() string {
	return "upload_sessions"
}
