package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPageSize is both the live window size and the pagination page size.
const DefaultPageSize = 10

// SendResult reports the outcome of one dispatched write.
type SendResult struct {
	Text    string
	Message Message
	Err     error
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSendInterval overrides DefaultSendInterval.
func WithSendInterval(d time.Duration) Option {
	return func(c *Controller) { c.sendInterval = d }
}

// WithSendNotify registers fn to receive every send result. It is called
// from the dispatcher goroutine after the controller state is updated.
func WithSendNotify(fn func(SendResult)) Option {
	return func(c *Controller) { c.notify = fn }
}

// Controller owns the draft and the message window for one signed-in user.
type Controller struct {
	store        Store
	logger       *zap.Logger
	pageSize     int
	sendInterval time.Duration
	notify       func(SendResult)
	dispatcher   *Dispatcher

	mu        sync.Mutex
	draft     string
	window    *Window
	loading   bool
	filling   bool
	exhausted bool
}

// NewController builds a controller over store.
func NewController(store Store, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		store:        store,
		logger:       logger,
		pageSize:     DefaultPageSize,
		sendInterval: DefaultSendInterval,
		window:       NewWindow(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatcher = NewDispatcher(c.sendInterval, c.write)
	return c
}

// PageSize is the live window and page size in use.
func (c *Controller) PageSize() int {
	return c.pageSize
}

// Draft returns the current input text.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft records the input text as the user edits it.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Sending reports whether a submitted draft has not been written yet.
func (c *Controller) Sending() bool {
	return c.dispatcher.Pending()
}

// Submit records text as the draft and hands it to the dispatcher. Blank
// text writes nothing and returns ErrBlank.
func (c *Controller) Submit(text string) error {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrBlank
	}
	return c.dispatcher.Submit(trimmed, nil)
}

func (c *Controller) write(ctx context.Context, text string) error {
	msg, err := c.store.Append(ctx, text)

	c.mu.Lock()
	if err == nil {
		c.draft = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("send message", zap.Error(err))
	} else {
		c.logger.Debug("message sent", zap.String("id", msg.ID))
	}
	if c.notify != nil {
		c.notify(SendResult{Text: text, Message: msg, Err: err})
	}
	return err
}

// ApplySnapshot splices a live snapshot into the window.
func (c *Controller) ApplySnapshot(snapshot []Message) {
	c.mu.Lock()
	c.window.ApplyLive(snapshot)
	c.mu.Unlock()
}

// Messages returns the window oldest first.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Ascending()
}

// Exhausted reports whether the store has no messages older than the window.
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// BeginLoadOlder decides whether a page should be requested. It returns the
// cursor to query and true only when atTop is set, no other page request is
// outstanding and there is something to page from: an unfilled gap first,
// else the oldest held message unless history is exhausted. Each true result
// must be followed by FinishLoadOlder.
func (c *Controller) BeginLoadOlder(atTop bool) (Cursor, bool) {
	if !atTop {
		return Cursor{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return Cursor{}, false
	}
	if cur, ok := c.window.Gap(); ok {
		c.loading, c.filling = true, true
		return cur, true
	}
	if c.exhausted {
		return Cursor{}, false
	}
	oldest, ok := c.window.Oldest()
	if !ok {
		return Cursor{}, false
	}
	c.loading = true
	return oldest.Cursor(), true
}

// BeginFillGap is BeginLoadOlder for gaps left by a live snapshot that
// jumped past the held window; it does not depend on the scroll position.
func (c *Controller) BeginFillGap() (Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return Cursor{}, false
	}
	cur, ok := c.window.Gap()
	if !ok {
		return Cursor{}, false
	}
	c.loading, c.filling = true, true
	return cur, true
}

// FetchOlder queries the page after cur.
func (c *Controller) FetchOlder(ctx context.Context, cur Cursor) ([]Message, error) {
	return c.store.ListBefore(ctx, cur, c.pageSize)
}

// FinishLoadOlder merges a fetched page and reports how many messages it added.
func (c *Controller) FinishLoadOlder(page []Message, err error) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	filling := c.filling
	c.loading, c.filling = false, false
	if err != nil {
		c.logger.Error("load older messages", zap.Error(err))
		return 0, fmt.Errorf("load older messages: %w", err)
	}
	if filling {
		return c.window.FillGap(page, c.pageSize), nil
	}
	if len(page) < c.pageSize {
		c.exhausted = true
	}
	return c.window.AppendOlder(page), nil
}

// LoadOlder runs a whole page request synchronously.
func (c *Controller) LoadOlder(ctx context.Context, atTop bool) (int, error) {
	cur, ok := c.BeginLoadOlder(atTop)
	if !ok {
		return 0, nil
	}
	page, err := c.FetchOlder(ctx, cur)
	return c.FinishLoadOlder(page, err)
}

// Close stops the dispatcher, dropping a draft that has not been sent.
func (c *Controller) Close() {
	c.dispatcher.Close()
}
