package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// messageDocument maps to the "chat" collection.
type messageDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Text      string        `bson:"text"`
	Sender    string        `bson:"sender"`
	Nonce     string        `bson:"nonce,omitempty"` // omitted so the partial unique index skips it
	CreatedAt time.Time     `bson:"created_at"`
}

func (d *messageDocument) toMessage() *Message {
	return &Message{
		ID:        d.ID.Hex(),
		Text:      d.Text,
		Sender:    d.Sender,
		Nonce:     d.Nonce,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// newestFirst is the ordering of every listing: created_at desc, then _id desc
// so messages sharing a millisecond still have a total order.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// MessagesStore provides message database operations on MongoDB.
type MessagesStore struct {
	// coll is reference to "chat" collection in MongoDB
	coll *mongo.Collection
	now  func() time.Time
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll, now: time.Now}
}

// Append inserts a message document and returns the saved record.
func (m *MessagesStore) Append(ctx context.Context, sender, text, nonce string) (*Message, error) {
	doc := &messageDocument{
		Text:      text,
		Sender:    sender,
		Nonce:     nonce,
		CreatedAt: serverTime(m.now()), // assigned here, never by the client
	}

	result, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		// A retried append carries the same nonce; hand back the first copy.
		if nonce != "" && mongo.IsDuplicateKeyError(err) {
			return m.findByNonce(ctx, nonce)
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Extract MongoDB's auto-generated _id
	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc.toMessage(), nil
}

func (m *MessagesStore) findByNonce(ctx context.Context, nonce string) (*Message, error) {
	var doc messageDocument
	err := m.coll.FindOne(ctx, bson.M{"nonce": nonce}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message by nonce: %w", err)
	}
	return doc.toMessage(), nil
}

// Latest returns the newest messages, newest first.
func (m *MessagesStore) Latest(ctx context.Context, limit int64) ([]*Message, error) {
	return m.find(ctx, bson.D{}, clampLimit(limit))
}

// Before returns one page of messages strictly older than cur.
func (m *MessagesStore) Before(ctx context.Context, cur Cursor, limit int64) ([]*Message, error) {
	at := cur.CreatedAt.UTC()

	// Without an id the cursor degrades to a plain timestamp bound.
	if cur.ID == "" {
		return m.find(ctx, bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: at}}}}, clampLimit(limit))
	}

	oid, err := bson.ObjectIDFromHex(cur.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	// Older timestamp, or same timestamp with a smaller _id.
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: at}}}},
		bson.D{
			{Key: "created_at", Value: at},
			{Key: "_id", Value: bson.D{{Key: "$lt", Value: oid}}},
		},
	}}}
	return m.find(ctx, filter, clampLimit(limit))
}

func (m *MessagesStore) find(ctx context.Context, filter bson.D, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(newestFirst).
		SetLimit(limit)

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*messageDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]*Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toMessage())
	}
	return msgs, nil
}
