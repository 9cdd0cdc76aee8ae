package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrInvalidJobKind indicates a job kind outside the closed set.
	ErrInvalidJobKind = errors.New("invalid job kind: must be 'transcode', 'asset', 'clean_preview' or 'notification'")

	// ErrInvalidJobStatus indicates an unknown job status filter.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrJobPayloadRequired indicates a job was created without a payload.
	ErrJobPayloadRequired = errors.New("job payload is required")

	// ErrProjectIDRequired indicates a required project ID field is empty.
	ErrProjectIDRequired = errors.New("project_id is required")

	// ErrSourcePathRequired indicates a required source storage path is empty.
	ErrSourcePathRequired = errors.New("source_storage_path is required")

	// ErrInvalidResolution indicates a preview resolution outside the supported set.
	ErrInvalidResolution = errors.New("invalid resolution: must be '720p' or '1080p'")

	// ErrInvalidAssetCategory indicates an unknown asset category.
	ErrInvalidAssetCategory = errors.New("invalid asset category: must be 'video', 'image', 'audio', 'document' or 'other'")

	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrInvalidDestinationKind indicates an unknown notification destination kind.
	ErrInvalidDestinationKind = errors.New("invalid destination kind: must be 'webhook' or 'apprise'")

	// ErrSettingKeyRequired indicates a setting row without a key.
	ErrSettingKeyRequired = errors.New("setting key is required")
)
