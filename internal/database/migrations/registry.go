package migrations

import (
	"github.com/jmylchreest/proofreel/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllMigrations returns all registered migrations in order.
//   - 001: schema for the queue and the domain tables the pipeline touches
//   - 002: default settings rows
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002DefaultSettings(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create queue and pipeline tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Job{},
				&models.JobHistory{},
				&models.Video{},
				&models.Asset{},
				&models.NotificationDestination{},
				&models.UploadSession{},
				&models.Setting{},
			)
		},
		Down: func(tx *gorm.DB) error {
			for _, table := range []string{
				"settings",
				"upload_sessions",
				"notification_destinations",
				"assets",
				"videos",
				"job_history",
				"jobs",
			} {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func migration002DefaultSettings() Migration {
	return Migration{
		Version:     "002",
		Description: "Insert default settings",
		Up: func(tx *gorm.DB) error {
			defaults := []models.Setting{
				{Key: models.SettingWatermarkText, Value: "PREVIEW", UpdatedAt: models.Now()},
				{Key: models.SettingCleanPreviewResolutions, Value: "720p,1080p", UpdatedAt: models.Now()},
			}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error
		},
		Down: func(tx *gorm.DB) error {
			// key is reserved in MySQL; clause.IN quotes the column
			return tx.Where(clause.IN{
				Column: clause.Column{Name: "key"},
				Values: []any{models.SettingWatermarkText, models.SettingCleanPreviewResolutions},
			}).Delete(&models.Setting{}).Error
		},
	}
}
