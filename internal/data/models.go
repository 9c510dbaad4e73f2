package data

import (
	"time"
)

// Message is a chat record as the stores return it. ID is opaque: a Mongo
// ObjectID hex string or a UUID for the SQL store.
type Message struct {
	ID        string
	Text      string
	Sender    string
	Nonce     string
	CreatedAt time.Time
}

// Cursor returns the pagination key of m.
func (m *Message) Cursor() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Cursor is a position in the (created_at desc, id desc) ordering. Before
// returns messages strictly after the cursor in that ordering, i.e. older.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// User is the gateway's record of a signed-in Google identity.
type User struct {
	ID         string
	Email      string
	PhotoURL   string
	Name       string
	CreatedAt  time.Time
	LastSeenAt time.Time
}
