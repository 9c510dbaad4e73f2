// Package feed keeps the client's view of the chat: a live top window merged
// with older pages, a debounced sender and scroll anchoring.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrBlank is returned when a submitted draft has no visible text.
	ErrBlank = errors.New("feed: draft is blank")
	// ErrBusy is returned while an earlier submit is still pending.
	ErrBusy = errors.New("feed: a send is already pending")
	// ErrClosed is returned after the dispatcher was closed.
	ErrClosed = errors.New("feed: dispatcher closed")
)

// Message is a chat message as the client holds it.
type Message struct {
	ID        string
	Text      string
	Sender    string
	CreatedAt time.Time
}

// Cursor returns the pagination key of m.
func (m Message) Cursor() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Cursor is a position in newest-first order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// compareNewestFirst orders by CreatedAt desc, then ID desc.
func compareNewestFirst(a, b Message) int {
	switch {
	case a.CreatedAt.After(b.CreatedAt):
		return -1
	case a.CreatedAt.Before(b.CreatedAt):
		return 1
	}
	return -strings.Compare(a.ID, b.ID)
}

// Subscription delivers successive live snapshots, newest first.
type Subscription interface {
	Recv() ([]Message, error)
	Close() error
}

// Store is the remote document store as the feed sees it.
type Store interface {
	// Subscribe opens a live query over the newest limit messages.
	Subscribe(ctx context.Context, limit int) (Subscription, error)
	// ListBefore returns up to limit messages strictly older than before.
	ListBefore(ctx context.Context, before Cursor, limit int) ([]Message, error)
	// Append writes text as the signed-in user.
	Append(ctx context.Context, text string) (Message, error)
}
