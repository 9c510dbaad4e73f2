package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/feedchat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// userDocument maps to the users collection.
type userDocument struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Email      string        `bson:"email"`
	PhotoURL   string        `bson:"photo_url"`
	Name       string        `bson:"name"`
	CreatedAt  time.Time     `bson:"created_at"`
	LastSeenAt time.Time     `bson:"last_seen_at"`
}

func (d *userDocument) toUser() *User {
	return &User{
		ID:         d.ID.Hex(),
		Email:      d.Email,
		PhotoURL:   d.PhotoURL,
		Name:       d.Name,
		CreatedAt:  d.CreatedAt,
		LastSeenAt: d.LastSeenAt,
	}
}

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// UpsertUser records a sign-in: the profile fields are refreshed on every call
// and created_at is only written the first time the email is seen.
func (u *UsersStore) UpsertUser(ctx context.Context, in *User) (*User, error) {
	email := normalize.Email(in.Email)
	now := time.Now().UTC()

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "photo_url", Value: in.PhotoURL},
			{Key: "name", Value: in.Name},
			{Key: "last_seen_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "email", Value: email},
			{Key: "created_at", Value: now},
		}},
	}

	_, err := u.coll.UpdateOne(ctx, bson.M{"email": email}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u.GetUserByEmail(ctx, email)
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var doc userDocument

	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}
