package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig(dsn string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}
}

func TestNew_SQLiteMemory(t *testing.T) {
	db, err := New(testConfig(":memory:"), nil, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())
	assert.False(t, db.SupportsSkipLocked())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["max_open_connections"])
}

func TestNew_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := New(testConfig(path), nil, nil)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 6, stats["max_open_connections"])
}

func TestNew_InvalidDriver(t *testing.T) {
	db, err := New(config.DatabaseConfig{Driver: "invalid", DSN: ":memory:"}, nil, nil)
	assert.Nil(t, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_CloseStopsPing(t *testing.T) {
	db, err := New(testConfig(":memory:"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestDB_Transaction(t *testing.T) {
	db, err := New(testConfig(":memory:"), nil, &Options{PrepareStmt: false})
	require.NoError(t, err)
	defer db.Close()

	type row struct {
		ID   uint
		Name string
	}
	require.NoError(t, db.AutoMigrate(&row{}))

	err = db.Transaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&row{Name: "kept"}).Error
	})
	require.NoError(t, err)

	err = db.Transaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&row{Name: "rolled back"}).Error; err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	var count int64
	require.NoError(t, db.Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Error, gormLogLevel("error"))
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Warn, gormLogLevel("anything"))
	assert.Equal(t, 200+len("... (truncated)"), len(truncateSQL(string(make([]byte, 500)))))
}
