package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/notify"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
)

// Dispatcher delivers one notification to its destinations.
type Dispatcher interface {
	Dispatch(ctx context.Context, req notify.Request) (*notify.Result, error)
}

// NotificationHandler delivers notification jobs.
type NotificationHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(dispatcher Dispatcher, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{dispatcher: dispatcher, logger: logger}
}

// Handle implements queue.Handler.
func (h *NotificationHandler) Handle(ctx context.Context, _ *queue.Delivery, p queue.NotificationPayload) (string, error) {
	result, err := h.dispatcher.Dispatch(ctx, notify.Request{
		DestinationIDs: p.DestinationIDs,
		EventType:      p.EventType,
		Title:          p.Title,
		Body:           p.Body,
		Severity:       p.Severity,
		SubjectID:      p.SubjectID,
	})
	if err != nil {
		return "", err
	}

	observability.LoggerFromContext(ctx).Info("notification delivered",
		slog.String("event_type", p.EventType),
		slog.Int("destinations", result.Delivered),
		slog.Int("skipped", result.Skipped))
	return fmt.Sprintf("delivered to %d of %d destinations", result.Delivered, result.Destinations), nil
}

// OnTerminalFailure logs the dropped notification.
func (h *NotificationHandler) OnTerminalFailure(_ context.Context, job *models.Job, p queue.NotificationPayload, cause error) {
	h.logger.Error("notification dropped",
		slog.String("job_id", job.ID.String()),
		slog.String("event_type", p.EventType),
		slog.String("title", p.Title),
		slog.String("error", cause.Error()))
}

var (
	_ queue.Handler[queue.NotificationPayload]                = (*NotificationHandler)(nil)
	_ queue.TerminalFailureHandler[queue.NotificationPayload] = (*NotificationHandler)(nil)
)
