package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(i int) Message {
	return Message{
		ID:        fmt.Sprintf("m%03d", i),
		Text:      fmt.Sprintf("text %d", i),
		Sender:    "a@example.com",
		CreatedAt: base.Add(time.Duration(i) * time.Second),
	}
}

// newestFirst returns msg(to) down to msg(from).
func newestFirst(from, to int) []Message {
	var out []Message
	for i := to; i >= from; i-- {
		out = append(out, msg(i))
	}
	return out
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	history   []Message
	appended  []string
	cursors   []Cursor
	appendErr error
	listErr   error
}

func (f *fakeStore) Subscribe(context.Context, int) (Subscription, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeStore) ListBefore(_ context.Context, before Cursor, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, before)
	if f.listErr != nil {
		return nil, f.listErr
	}
	all := slices.Clone(f.history)
	slices.SortFunc(all, compareNewestFirst)
	pivot := Message{ID: before.ID, CreatedAt: before.CreatedAt}
	var out []Message
	for _, m := range all {
		if compareNewestFirst(m, pivot) > 0 {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Append(_ context.Context, text string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return Message{}, f.appendErr
	}
	f.appended = append(f.appended, text)
	m := Message{ID: fmt.Sprintf("new%d", len(f.appended)), Text: text, CreatedAt: time.Now()}
	f.history = append(f.history, m)
	return m, nil
}

func (f *fakeStore) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.appended)
}

func (f *fakeStore) queried() []Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.cursors)
}
