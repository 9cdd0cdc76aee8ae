package supervisor

import (
	"log/slog"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
	"github.com/jmylchreest/proofreel/internal/service"
	"github.com/jmylchreest/proofreel/internal/settings"
)

// Queues are the typed producers for every job kind on one connection.
type Queues struct {
	Transcode    *queue.Queue[queue.TranscodePayload]
	Asset        *queue.Queue[queue.AssetPayload]
	CleanPreview *queue.Queue[queue.CleanPreviewPayload]
	Notification *queue.Queue[queue.NotificationPayload]
}

// NewQueues builds the four queues on conn.
func NewQueues(conn *queue.Connection, logger *slog.Logger) *Queues {
	return &Queues{
		Transcode:    queue.New[queue.TranscodePayload](conn, logger),
		Asset:        queue.New[queue.AssetPayload](conn, logger),
		CleanPreview: queue.New[queue.CleanPreviewPayload](conn, logger),
		Notification: queue.New[queue.NotificationPayload](conn, logger),
	}
}

// Repositories are the domain repositories on the queue connection.
type Repositories struct {
	Videos         repository.VideoRepository
	Assets         repository.AssetRepository
	Destinations   repository.DestinationRepository
	Settings       repository.SettingsRepository
	UploadSessions repository.UploadSessionRepository
}

// NewRepositories builds the repositories over conn's database.
func NewRepositories(conn *queue.Connection) *Repositories {
	db := conn.DB().DB
	return &Repositories{
		Videos:         repository.NewVideoRepository(db),
		Assets:         repository.NewAssetRepository(db),
		Destinations:   repository.NewDestinationRepository(db),
		Settings:       repository.NewSettingsRepository(db),
		UploadSessions: repository.NewUploadSessionRepository(db),
	}
}

// Services is the enqueue side, shared by the CLI and the running pipeline.
type Services struct {
	Repos         *Repositories
	Queues        *Queues
	Cache         *settings.Cache
	Videos        *service.VideoService
	Assets        *service.AssetService
	Notifications *service.NotificationService
	Settings      *service.SettingsService
}

// NewServices wires the services over conn. The settings cache is created
// here and shared with the workers when the pipeline runs.
func NewServices(cfg *config.Config, conn *queue.Connection, logger *slog.Logger) *Services {
	repos := NewRepositories(conn)
	queues := NewQueues(conn, logger)
	cache := settings.NewCache(repos.Settings, repos.Destinations, cfg.Settings.CacheTTL, logger)

	return &Services{
		Repos:  repos,
		Queues: queues,
		Cache:  cache,
		Videos: service.NewVideoService(repos.Videos, queues.Transcode, queues.CleanPreview, cache).
			WithLogger(logger),
		Assets: service.NewAssetService(repos.Assets, queues.Asset).
			WithLogger(logger),
		Notifications: service.NewNotificationService(repos.Destinations, queues.Notification, cache).
			WithLogger(logger),
		Settings: service.NewSettingsService(repos.Settings, cache).
			WithLogger(logger),
	}
}
