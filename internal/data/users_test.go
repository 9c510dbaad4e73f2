package data

import (
	"context"
	"testing"
	"time"
)

func TestUsersUpsertAndGet(t *testing.T) {
	c := setupMongo(t)
	defer func() { _ = c.Close(context.Background()) }()

	users := NewUsersStore(c.UsersCollection())

	ctx := context.Background()
	email := time.Now().UTC().Format("20060102-150405") + "-integration@example.com"

	// create
	user, err := users.UpsertUser(ctx, &User{Email: email, PhotoURL: "https://example.com/a.png"})
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if user.Email != email {
		t.Fatalf("expected email %s got %s", email, user.Email)
	}

	// refresh profile; created_at must survive
	again, err := users.UpsertUser(ctx, &User{Email: email, PhotoURL: "https://example.com/b.png", Name: "Alice"})
	if err != nil {
		t.Fatalf("second UpsertUser failed: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("upsert created a second user: %s vs %s", again.ID, user.ID)
	}
	if again.PhotoURL != "https://example.com/b.png" || again.Name != "Alice" {
		t.Fatalf("profile not refreshed: %+v", again)
	}
	if !again.CreatedAt.Equal(user.CreatedAt) {
		t.Fatalf("created_at changed on upsert")
	}

	// Get by email, mixed case
	if _, err := users.GetUserByEmail(ctx, "  "+email); err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if _, err := users.GetUserByEmail(ctx, "nobody@example.com"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
