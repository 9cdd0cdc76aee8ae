package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// DestinationKind selects the delivery transport for a destination.
type DestinationKind string

const (
	// DestinationWebhook receives a JSON POST.
	DestinationWebhook DestinationKind = "webhook"
	// DestinationApprise holds an Apprise URL delivered through an Apprise API server.
	DestinationApprise DestinationKind = "apprise"
)

// NotificationDestination is a configured notification target.
type NotificationDestination struct {
	Record

	Name    string          `gorm:"not null;size:255;uniqueIndex" json:"name"`
	Kind    DestinationKind `gorm:"not null;size:20" json:"kind"`
	URL     string          `gorm:"not null;size:2048" json:"url"`
	Enabled *bool           `gorm:"default:true" json:"enabled"`
}

// TableName returns the table name for NotificationDestination.
func (NotificationDestination) TableName() string {
	return "notification_destinations"
}

// IsEnabled reports whether the destination should receive notifications.
func (d *NotificationDestination) IsEnabled() bool {
	return BoolVal(d.Enabled)
}

// Validate performs basic validation on the destination.
func (d *NotificationDestination) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(d.URL) == "" {
		return ErrURLRequired
	}
	switch d.Kind {
	case DestinationWebhook:
		u, err := url.Parse(d.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrValidation{Field: "url", Message: "webhook url must be an absolute http(s) url"}
		}
	case DestinationApprise:
		if !strings.Contains(d.URL, "://") {
			return ErrValidation{Field: "url", Message: "apprise url must contain a scheme"}
		}
	default:
		return ErrInvalidDestinationKind
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the destination.
func (d *NotificationDestination) BeforeCreate(tx *gorm.DB) error {
	if err := d.Record.BeforeCreate(tx); err != nil {
		return err
	}
	return d.Validate()
}
