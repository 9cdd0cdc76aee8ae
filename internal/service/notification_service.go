package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/notify"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
)

// NotifyInput is a notification to deliver. Empty DestinationIDs means
// every enabled destination at delivery time.
type NotifyInput struct {
	DestinationIDs []string
	EventType      string
	Title          string
	Body           string
	Severity       string
	SubjectID      string
}

// NotificationService enqueues notifications and manages destinations.
type NotificationService struct {
	destinations repository.DestinationRepository
	jobs         Enqueuer[queue.NotificationPayload]
	cache        Invalidator
	logger       *slog.Logger
}

// NewNotificationService creates a new NotificationService. cache is
// invalidated after destination writes and may be nil.
func NewNotificationService(destinations repository.DestinationRepository, jobs Enqueuer[queue.NotificationPayload], cache Invalidator) *NotificationService {
	return &NotificationService{
		destinations: destinations,
		jobs:         jobs,
		cache:        cache,
		logger:       slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *NotificationService) WithLogger(logger *slog.Logger) *NotificationService {
	s.logger = logger
	return s
}

// Notify enqueues one notification job. The severity is normalised here so
// the stored payload shows what will be sent.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*queue.Handle, error) {
	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		eventType = "manual"
	}
	return s.jobs.Enqueue(ctx, queue.NotificationPayload{
		DestinationIDs: in.DestinationIDs,
		EventType:      eventType,
		Title:          in.Title,
		Body:           in.Body,
		Severity:       string(notify.NormalizeSeverity(in.Severity)),
		SubjectID:      in.SubjectID,
	})
}

// AddDestination stores a destination. New destinations are enabled.
func (s *NotificationService) AddDestination(ctx context.Context, dest *models.NotificationDestination) error {
	if err := s.destinations.Create(ctx, dest); err != nil {
		return err
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "notification destination added",
		slog.String("destination_id", dest.ID),
		slog.String("name", dest.Name),
		slog.String("kind", string(dest.Kind)))
	return nil
}

// ListDestinations returns every destination.
func (s *NotificationService) ListDestinations(ctx context.Context) ([]*models.NotificationDestination, error) {
	return s.destinations.GetAll(ctx)
}

// SetDestinationEnabled switches a destination on or off.
func (s *NotificationService) SetDestinationEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.destinations.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// RemoveDestination deletes a destination.
func (s *NotificationService) RemoveDestination(ctx context.Context, id string) error {
	if err := s.destinations.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *NotificationService) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}
