package feed

import (
	"context"
	"sync"
	"time"
)

// DefaultSendInterval is the quiet period before a submitted draft is written.
const DefaultSendInterval = 500 * time.Millisecond

// SendFunc performs the write for one submitted text.
type SendFunc func(ctx context.Context, text string) error

// Dispatcher delays each submit by a fixed interval and then performs exactly
// one write. While a submit is waiting or being written, further submits are
// refused with ErrBusy.
type Dispatcher struct {
	interval time.Duration
	send     SendFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending bool
	closed  bool
	timer   *time.Timer
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher that writes through send.
func NewDispatcher(interval time.Duration, send SendFunc) *Dispatcher {
	if interval <= 0 {
		interval = DefaultSendInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		interval: interval,
		send:     send,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit arms the timer for text. done runs on the timer goroutine with the
// write's result; the dispatcher only accepts a new submit after done returns.
func (d *Dispatcher) Submit(text string, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.pending {
		return ErrBusy
	}
	d.pending = true
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.interval, func() {
		defer d.wg.Done()
		err := d.send(d.ctx, text)
		if done != nil {
			done(err)
		}
		d.mu.Lock()
		d.pending = false
		d.timer = nil
		d.mu.Unlock()
	})
	return nil
}

// Pending reports whether a submit is waiting or in flight.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close drops a submit that has not fired yet, cancels one in flight and
// waits for it to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil && d.timer.Stop() {
		d.pending = false
		d.timer = nil
		d.wg.Done()
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
