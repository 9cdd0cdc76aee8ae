package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory database with every table migrated.
// The pool is pinned to one connection because each :memory: connection is
// its own database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Job{},
		&models.JobHistory{},
		&models.Video{},
		&models.Asset{},
		&models.NotificationDestination{},
		&models.UploadSession{},
		&models.Setting{},
	))
	return db
}
