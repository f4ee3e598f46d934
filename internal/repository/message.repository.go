package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stayware/message-etl/internal/model"
	"github.com/stayware/message-etl/pkg/logger"
	"github.com/stayware/message-etl/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by point reads when no row matches.
var ErrNotFound = errors.New("message not found")

const (
	connectRetries    = 3
	connectRetryDelay = 5 * time.Second
)

// MessageRepository persists canonical messages. Writes report success as
// a bool rather than an error: the pipeline counts failures and keeps
// going, it never aborts on a single bad row.
type MessageRepository struct {
	db        *pg.DB
	dryRun    bool
	connected bool

	// sleep is swapped out in tests
	sleep func(d time.Duration)
}

func NewMessageRepository(db *pg.DB, dryRun bool) *MessageRepository {
	return &MessageRepository{
		db:     db,
		dryRun: dryRun,
		sleep:  time.Sleep,
	}
}

// Connect probes the database with a small retry budget and reports
// whether the store is usable. A false return is a signal to notify and
// abort the run, not an error to propagate.
func (r *MessageRepository) Connect(ctx context.Context) bool {
	if r.dryRun {
		logger.Info("DRY RUN: would connect to database")
		r.connected = true
		return true
	}

	sqlDB, err := r.db.SQL()
	if err != nil {
		logger.Error("failed to acquire database handle", "error", err)
		return false
	}

	for attempt := 1; attempt <= connectRetries; attempt++ {
		if err = sqlDB.PingContext(ctx); err == nil {
			r.connected = true
			logger.Info("connected to database")
			r.ensureIndexes(ctx)
			return true
		}
		logger.Warn("database ping failed", "attempt", attempt, "max_attempts", connectRetries, "error", err)
		if attempt < connectRetries {
			r.sleep(connectRetryDelay)
		}
	}

	logger.Error("could not connect to database", "error", err)
	return false
}

// ensureIndexes creates the query-pattern indexes on every connect.
// Index creation failures are logged and tolerated since the table may
// predate a migration run.
func (r *MessageRepository) ensureIndexes(ctx context.Context) {
	conn := r.db.Conn(ctx)
	stmts := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_message_id ON messages (message_id)",
		"CREATE INDEX IF NOT EXISTS idx_property_timestamp ON messages (property_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_nationality_timestamp ON messages (guest_nationality, timestamp)",
	}
	if conn.Dialector.Name() == "postgres" {
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS idx_messages_content_fts ON messages USING GIN (to_tsvector('english', content))")
	}
	for _, stmt := range stmts {
		if err := conn.Exec(stmt).Error; err != nil {
			logger.Warn("index creation failed", "statement", stmt, "error", err)
		}
	}
}

// Upsert writes one message keyed by message_id, overwriting any existing
// row. Returns whether the write succeeded.
func (r *MessageRepository) Upsert(ctx context.Context, m *model.Message) bool {
	if r.dryRun {
		logger.Info("DRY RUN: would store message", "message_id", m.MessageID)
		return true
	}
	if !r.connected {
		logger.Error("store is not connected, dropping message", "message_id", m.MessageID)
		return false
	}

	entity := toMessageEntity(m)
	err := r.db.Conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			UpdateAll: true,
		}).
		Create(entity).Error
	if err != nil {
		logger.Error("failed to store message", "message_id", m.MessageID, "error", err)
		return false
	}
	return true
}

// LatestTimestamp returns the timestamp of the most recent stored message,
// or nil when the store is empty or unusable. It drives the default
// incremental cutoff of a run.
func (r *MessageRepository) LatestTimestamp(ctx context.Context) *time.Time {
	if r.dryRun || !r.connected {
		return nil
	}
	var entity MessageEntity
	err := r.db.Conn(ctx).Order("timestamp DESC").First(&entity).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("failed to read latest timestamp", "error", err)
		}
		return nil
	}
	ts := entity.Timestamp
	return &ts
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	if r.dryRun {
		return 0, nil
	}
	var count int64
	err := r.db.Conn(ctx).Model(&MessageEntity{}).Count(&count).Error
	return count, err
}

// List returns a page of messages ordered newest first plus the total row
// count.
func (r *MessageRepository) List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, int64, error) {
	var total int64
	conn := r.db.Conn(ctx)
	if err := conn.Model(&MessageEntity{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*MessageEntity
	err := conn.
		Order("timestamp DESC").
		Offset(filter.Skip).
		Limit(filter.Limit).
		Find(&entities).Error
	if err != nil {
		return nil, 0, err
	}
	return toMessageModels(entities), total, nil
}

func (r *MessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.db.Conn(ctx).Where("message_id = ?", messageID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// Disconnect closes the underlying pool. Safe to call when Connect never
// succeeded.
func (r *MessageRepository) Disconnect() {
	if r.dryRun || !r.connected {
		return
	}
	sqlDB, err := r.db.SQL()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("error while closing database connection", "error", err)
		return
	}
	r.connected = false
	logger.Info("database connection closed")
}
