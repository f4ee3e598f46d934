package repository

import (
	"testing"
	"time"

	"github.com/stayware/message-etl/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&MessageEntity{})
	require.NoError(t, err)

	return pg.NewFromGorm(db)
}

func setupTestRepository(t *testing.T) *MessageRepository {
	t.Helper()
	repo := NewMessageRepository(setupTestDB(t), false)
	repo.sleep = func(time.Duration) {}
	return repo
}
