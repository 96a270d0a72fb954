package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// MessageRecord is the messages table row.
type MessageRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false"`
	Sender      string    `gorm:"not null"`
	SenderID    string    `gorm:"column:sender_id;not null;index"`
	ReceiverID  *string   `gorm:"column:receiver_id;index"`
	Content     string    `gorm:"not null"`
	Timestamp   time.Time `gorm:"not null;index"`
	IsPrivate   bool      `gorm:"column:is_private;not null"`
	AvatarColor string    `gorm:"column:avatar_color"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "messages"
}

func toRecord(msg models.Message) MessageRecord {
	return MessageRecord{
		ID:          msg.ID,
		Sender:      msg.Sender,
		SenderID:    msg.SenderConnectionID,
		ReceiverID:  msg.RecipientConnectionID,
		Content:     msg.Content,
		Timestamp:   msg.Timestamp.UTC(),
		IsPrivate:   msg.IsPrivate,
		AvatarColor: msg.AvatarColor,
	}
}

func (r MessageRecord) toMessage() models.Message {
	return models.Message{
		ID:                    r.ID,
		Sender:                r.Sender,
		SenderConnectionID:    r.SenderID,
		RecipientConnectionID: r.ReceiverID,
		Content:               r.Content,
		Timestamp:             r.Timestamp.UTC(),
		AvatarColor:           r.AvatarColor,
		IsPrivate:             r.IsPrivate,
	}
}

// SQLiteStore keeps messages in SQLite through GORM.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and migrates the
// messages table. ":memory:" gives a private in-memory database.
func OpenSQLite(path string, debug bool) (*SQLiteStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases alive for the lifetime of the store.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&MessageRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("[STORE] SQLite store ready", "path", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// Save appends msg.
func (s *SQLiteStore) Save(ctx context.Context, msg models.Message) error {
	rec := toRecord(msg)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %d", ErrDuplicateMessage, msg.ID)
		}
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GeneralHistory returns the most recent broadcast messages.
func (s *SQLiteStore) GeneralHistory(ctx context.Context, limit int) ([]models.Message, error) {
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Where("is_private = ?", false).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(NormalizeLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load general history: %w", err)
	}
	return toMessages(recs), nil
}

// DirectHistory returns the most recent private messages sent or received
// by connectionID.
func (s *SQLiteStore) DirectHistory(ctx context.Context, connectionID string, limit int) ([]models.Message, error) {
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND is_private = ?", connectionID, connectionID, true).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(NormalizeLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load direct history: %w", err)
	}
	return toMessages(recs), nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	slog.Info("[STORE] SQLite store closed", "path", s.path)
	return nil
}

func toMessages(recs []MessageRecord) []models.Message {
	msgs := make([]models.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, r.toMessage())
	}
	return msgs
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
