package queue

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/proofreel/internal/models"
)

// Payload is implemented by the fixed set of job payloads in this package.
// The unexported method keeps the set closed.
type Payload interface {
	Kind() models.JobKind
	// Subject identifies the record the job is about, for listings.
	Subject() string
	Validate() error
	payload()
}

// TranscodePayload requests the watermarked review preview for a video.
type TranscodePayload struct {
	VideoID           string `json:"videoId"`
	ProjectID         string `json:"projectId"`
	SourceStoragePath string `json:"sourceStoragePath"`
}

func (TranscodePayload) Kind() models.JobKind { return models.JobKindTranscode }
func (p TranscodePayload) Subject() string    { return p.VideoID }
func (TranscodePayload) payload()             {}

func (p TranscodePayload) Validate() error {
	return requireFields(map[string]string{
		"videoId":           p.VideoID,
		"projectId":         p.ProjectID,
		"sourceStoragePath": p.SourceStoragePath,
	})
}

// AssetPayload requests categorisation and thumbnailing of an asset.
// ProjectID is optional; the handler reads it from the asset record when
// it is absent.
type AssetPayload struct {
	AssetID           string                `json:"assetId"`
	ProjectID         string                `json:"projectId,omitempty"`
	SourceStoragePath string                `json:"sourceStoragePath"`
	ExpectedCategory  *models.AssetCategory `json:"expectedCategory,omitempty"`
}

func (AssetPayload) Kind() models.JobKind { return models.JobKindAsset }
func (p AssetPayload) Subject() string    { return p.AssetID }
func (AssetPayload) payload()             {}

func (p AssetPayload) Validate() error {
	if err := requireFields(map[string]string{
		"assetId":           p.AssetID,
		"sourceStoragePath": p.SourceStoragePath,
	}); err != nil {
		return err
	}
	if p.ExpectedCategory != nil {
		if _, err := models.ParseAssetCategory(string(*p.ExpectedCategory)); err != nil {
			return err
		}
	}
	return nil
}

// CleanPreviewPayload requests an unwatermarked preview at one resolution.
type CleanPreviewPayload struct {
	VideoID           string            `json:"videoId"`
	ProjectID         string            `json:"projectId"`
	SourceStoragePath string            `json:"sourceStoragePath"`
	Resolution        models.Resolution `json:"resolution"`
}

func (CleanPreviewPayload) Kind() models.JobKind { return models.JobKindCleanPreview }
func (p CleanPreviewPayload) Subject() string    { return p.VideoID }
func (CleanPreviewPayload) payload()             {}

func (p CleanPreviewPayload) Validate() error {
	if err := requireFields(map[string]string{
		"videoId":           p.VideoID,
		"projectId":         p.ProjectID,
		"sourceStoragePath": p.SourceStoragePath,
	}); err != nil {
		return err
	}
	if !p.Resolution.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidResolution, p.Resolution)
	}
	return nil
}

// NotificationPayload requests delivery of one message. Empty
// DestinationIDs means every enabled destination.
type NotificationPayload struct {
	DestinationIDs []string `json:"destinationIds,omitempty"`
	EventType      string   `json:"eventType"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Severity       string   `json:"severity,omitempty"`
	// SubjectID is the record the event is about, if any.
	SubjectID string `json:"subjectId,omitempty"`
}

func (NotificationPayload) Kind() models.JobKind { return models.JobKindNotification }
func (p NotificationPayload) Subject() string    { return p.SubjectID }
func (NotificationPayload) payload()             {}

func (p NotificationPayload) Validate() error {
	return requireFields(map[string]string{
		"eventType": p.EventType,
		"title":     p.Title,
		"body":      p.Body,
	})
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
}

// decodePayload unmarshals a stored payload into P.
func decodePayload[P Payload](job *models.Job) (P, error) {
	var p P
	if job.Kind != p.Kind() {
		return p, fmt.Errorf("%w: job %s is %s, consumer expects %s", ErrKindMismatch, job.ID, job.Kind, p.Kind())
	}
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return p, fmt.Errorf("decoding %s payload: %w", job.Kind, err)
	}
	return p, nil
}
