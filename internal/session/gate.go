// Package session decides, from the auth provider's reports, whether the
// client shows the sign-in prompt or the chat.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPopupBlocked means the consent page could not be shown to the user.
var ErrPopupBlocked = errors.New("session: browser could not be opened")

// PopupBlockedNotice is shown when sign-in fails with ErrPopupBlocked.
const PopupBlockedNotice = "Could not open your browser for Google sign-in. Allow the browser to open and try again."

// State is the gate's view of authentication.
type State int

const (
	// Loading means the provider has not reported yet.
	Loading State = iota
	SignedOut
	SignedIn
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case SignedOut:
		return "signed-out"
	case SignedIn:
		return "signed-in"
	}
	return "unknown"
}

// Identity is the signed-in user as the identity provider describes them.
type Identity struct {
	Email    string
	PhotoURL string
	Name     string
}

// AuthEvent is one report from the provider. A nil Identity means signed out.
type AuthEvent struct {
	Identity *Identity
}

// AuthProvider is the external identity service.
type AuthProvider interface {
	// Observe reports the current state first and every change after it.
	Observe() <-chan AuthEvent
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// Gate tracks auth state and fronts the provider's sign-in and sign-out.
type Gate struct {
	provider AuthProvider
	logger   *zap.Logger

	mu       sync.RWMutex
	state    State
	identity Identity
	notice   string
}

// NewGate returns a gate in the Loading state.
func NewGate(provider AuthProvider, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{provider: provider, logger: logger}
}

// Events is the provider's observation channel.
func (g *Gate) Events() <-chan AuthEvent {
	return g.provider.Observe()
}

// Apply moves the gate to the state ev describes.
func (g *Gate) Apply(ev AuthEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ev.Identity == nil {
		g.state = SignedOut
		g.identity = Identity{}
		return
	}
	g.state = SignedIn
	g.identity = *ev.Identity
	g.notice = ""
	g.logger.Info("signed in", zap.String("email", ev.Identity.Email))
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Identity returns the signed-in identity.
func (g *Gate) Identity() (Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity, g.state == SignedIn
}

// Notice is the message left by the last failed sign-in, if any.
func (g *Gate) Notice() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.notice
}

// SignIn runs the provider's interactive sign-in. ErrPopupBlocked leaves a
// notice and is returned; any other failure is logged and dropped. The
// state changes only through the provider's next event.
func (g *Gate) SignIn(ctx context.Context) error {
	g.mu.Lock()
	g.notice = ""
	g.mu.Unlock()

	err := g.provider.SignIn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPopupBlocked):
		g.mu.Lock()
		g.notice = PopupBlockedNotice
		g.mu.Unlock()
		g.logger.Warn("sign-in popup blocked", zap.Error(err))
		return err
	default:
		g.logger.Error("sign-in failed", zap.Error(err))
		return nil
	}
}

// SignOut ends the session at the provider.
func (g *Gate) SignOut(ctx context.Context) error {
	if err := g.provider.SignOut(ctx); err != nil {
		g.logger.Error("sign-out failed", zap.Error(err))
		return err
	}
	return nil
}
