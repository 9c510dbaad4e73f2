// Package data provides the chat and user stores backing the gateway.
package data

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

const (
	// DefaultPageSize is used when a caller passes a non-positive limit.
	DefaultPageSize int64 = 10
	// MaxPageSize caps every listing.
	MaxPageSize int64 = 100
)

// MessageStore is the document-store surface the chat feed needs.
type MessageStore interface {
	// Append stores text from sender with a store-assigned CreatedAt. A
	// non-empty nonce that was already stored returns the earlier message.
	Append(ctx context.Context, sender, text, nonce string) (*Message, error)
	// Latest returns the newest limit messages, newest first.
	Latest(ctx context.Context, limit int64) ([]*Message, error)
	// Before returns up to limit messages older than cur, newest first.
	Before(ctx context.Context, cur Cursor, limit int64) ([]*Message, error)
}

// UserStore records identities that signed in through the gateway.
type UserStore interface {
	UpsertUser(ctx context.Context, u *User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

func clampLimit(limit int64) int64 {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// serverTime is the timestamp assigned on insert. Mongo keeps milliseconds,
// so both stores truncate to keep cursors comparable across backends.
func serverTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}
