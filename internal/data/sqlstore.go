package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/feedchat/internal/normalize"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqlMessage is the SQL row of a chat message. Timestamps are stored as unix
// nanoseconds so range comparisons do not depend on the driver's time format.
type sqlMessage struct {
	ID           string  `gorm:"primaryKey;size:36;index:idx_chat_order,priority:2"`
	Text         string  `gorm:"not null"`
	Sender       string  `gorm:"not null;index"`
	Nonce        *string `gorm:"uniqueIndex"`
	CreatedNanos int64   `gorm:"column:created_nanos;not null;index:idx_chat_order,priority:1"`
}

func (sqlMessage) TableName() string { return "chat" }

func (r *sqlMessage) toMessage() *Message {
	m := &Message{
		ID:        r.ID,
		Text:      r.Text,
		Sender:    r.Sender,
		CreatedAt: time.Unix(0, r.CreatedNanos).UTC(),
	}
	if r.Nonce != nil {
		m.Nonce = *r.Nonce
	}
	return m
}

type sqlUser struct {
	ID         string `gorm:"primaryKey;size:36"`
	Email      string `gorm:"uniqueIndex;not null"`
	PhotoURL   string
	Name       string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

func (sqlUser) TableName() string { return "users" }

// SQLStore implements MessageStore and UserStore on any gorm dialect. It backs
// local development and tests; production deployments use MongoDB.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithClock replaces time.Now as the source of server timestamps.
func WithClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) { s.now = now }
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// NewSQLStore migrates the schema and returns a store over db.
func NewSQLStore(db *gorm.DB, opts ...SQLOption) (*SQLStore, error) {
	if err := db.AutoMigrate(&sqlMessage{}, &sqlUser{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s := &SQLStore{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append stores a message; a repeated nonce returns the stored copy.
func (s *SQLStore) Append(ctx context.Context, sender, text, nonce string) (*Message, error) {
	if nonce != "" {
		if m, err := s.findByNonce(ctx, nonce); err == nil {
			return m, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	row := &sqlMessage{
		ID:           uuid.NewString(),
		Text:         text,
		Sender:       sender,
		CreatedNanos: serverTime(s.now()).UnixNano(),
	}
	if nonce != "" {
		row.Nonce = &nonce
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// lost a race with a concurrent retry of the same nonce
		if nonce != "" {
			if m, ferr := s.findByNonce(ctx, nonce); ferr == nil {
				return m, nil
			}
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return row.toMessage(), nil
}

func (s *SQLStore) findByNonce(ctx context.Context, nonce string) (*Message, error) {
	var row sqlMessage
	err := s.db.WithContext(ctx).Where("nonce = ?", nonce).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message by nonce: %w", err)
	}
	return row.toMessage(), nil
}

// Latest returns the newest messages, newest first.
func (s *SQLStore) Latest(ctx context.Context, limit int64) ([]*Message, error) {
	return s.list(s.db.WithContext(ctx), clampLimit(limit))
}

// Before returns one page of messages strictly older than cur.
func (s *SQLStore) Before(ctx context.Context, cur Cursor, limit int64) ([]*Message, error) {
	n := cur.CreatedAt.UnixNano()
	q := s.db.WithContext(ctx)
	if cur.ID == "" {
		q = q.Where("created_nanos < ?", n)
	} else {
		q = q.Where("created_nanos < ? OR (created_nanos = ? AND id < ?)", n, n, cur.ID)
	}
	return s.list(q, clampLimit(limit))
}

func (s *SQLStore) list(q *gorm.DB, limit int64) ([]*Message, error) {
	var rows []sqlMessage
	err := q.Order("created_nanos desc").Order("id desc").Limit(int(limit)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]*Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toMessage())
	}
	return msgs, nil
}

// UpsertUser inserts the user or refreshes its profile and last-seen time.
func (s *SQLStore) UpsertUser(ctx context.Context, in *User) (*User, error) {
	now := s.now().UTC()
	row := &sqlUser{
		ID:         uuid.NewString(),
		Email:      normalize.Email(in.Email),
		PhotoURL:   in.PhotoURL,
		Name:       in.Name,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"photo_url", "name", "last_seen_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUserByEmail(ctx, row.Email)
}

// GetUserByEmail finds a user by email.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var row sqlUser
	err := s.db.WithContext(ctx).Where("email = ?", normalize.Email(email)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &User{
		ID:         row.ID,
		Email:      row.Email,
		PhotoURL:   row.PhotoURL,
		Name:       row.Name,
		CreatedAt:  row.CreatedAt,
		LastSeenAt: row.LastSeenAt,
	}, nil
}
