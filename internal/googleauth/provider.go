// Package googleauth signs the chat client in with Google using the
// installed-app OAuth flow and trades the resulting ID token for a gateway
// session.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/PaulBabatuyi/feedchat/internal/session"
)

// DefaultTimeout bounds how long SignIn waits for the browser round trip.
const DefaultTimeout = 5 * time.Minute

var scopes = []string{"openid", "email", "profile"}

// Exchanger turns a Google ID token into a gateway session.
type Exchanger interface {
	Exchange(ctx context.Context, idToken string) (session.Identity, error)
	// Forget drops the gateway session.
	Forget()
}

// Config configures a Provider.
type Config struct {
	ClientID     string
	ClientSecret string
	// TokenCache is the refresh token file; empty disables silent sign-in.
	TokenCache string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
	// OpenBrowser defaults to the platform opener.
	OpenBrowser func(url string) error
	Timeout     time.Duration
}

// Provider implements session.AuthProvider against Google.
type Provider struct {
	oauth     *oauth2.Config
	exchanger Exchanger
	cache     *TokenCache
	open      func(string) error
	timeout   time.Duration
	logger    *zap.Logger

	events    chan session.AuthEvent
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	signedIn bool
}

// New builds a provider. Call Restore once to publish the initial state.
func New(cfg Config, exchanger Exchanger, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	open := cfg.OpenBrowser
	if open == nil {
		open = openBrowser
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		exchanger: exchanger,
		cache:     NewTokenCache(cfg.TokenCache),
		open:      open,
		timeout:   timeout,
		logger:    logger,
		events:    make(chan session.AuthEvent, 4),
		done:      make(chan struct{}),
	}
}

// Observe implements session.AuthProvider.
func (p *Provider) Observe() <-chan session.AuthEvent {
	return p.events
}

// ErrNoRefreshToken is returned by Renew when there is no cached token to
// sign in with.
var ErrNoRefreshToken = errors.New("googleauth: no cached refresh token")

// Restore signs in silently from the cached refresh token, then publishes
// the resulting state.
func (p *Provider) Restore(ctx context.Context) {
	id, err := p.refresh(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoRefreshToken) {
			p.logger.Warn("silent sign-in failed", zap.Error(err))
		}
		p.emit(nil)
		return
	}
	p.emit(&id)
}

// Renew repeats the silent sign-in after the gateway session expired. The
// identity is unchanged on success, so nothing is published; on failure the
// user is signed out.
func (p *Provider) Renew(ctx context.Context) error {
	id, err := p.refresh(ctx)
	if err != nil {
		p.logger.Warn("session renewal failed", zap.Error(err))
		p.exchanger.Forget()
		p.emit(nil)
		return err
	}
	p.logger.Info("gateway session renewed", zap.String("email", id.Email))
	return nil
}

func (p *Provider) refresh(ctx context.Context) (session.Identity, error) {
	tok, err := p.cache.Load()
	if err != nil {
		return session.Identity{}, err
	}
	if tok == nil {
		return session.Identity{}, ErrNoRefreshToken
	}

	fresh, err := p.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return session.Identity{}, fmt.Errorf("refresh google token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return p.complete(ctx, fresh)
}

// SignIn opens Google's account chooser in the browser and waits for the
// loopback redirect.
func (p *Provider) SignIn(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth callback: %w", err)
	}

	conf := *p.oauth
	conf.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	server, results := serveCallback(ln, state)
	defer shutdown(server)

	if err := p.open(authURL); err != nil {
		return fmt.Errorf("%w: %v", session.ErrPopupBlocked, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var code string
	select {
	case r := <-results:
		if r.err != nil {
			return r.err
		}
		code = r.code
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	id, err := p.complete(ctx, tok)
	if err != nil {
		return err
	}
	p.emit(&id)
	return nil
}

func (p *Provider) complete(ctx context.Context, tok *oauth2.Token) (session.Identity, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return session.Identity{}, errors.New("google response carried no id_token")
	}
	id, err := p.exchanger.Exchange(ctx, idToken)
	if err != nil {
		return session.Identity{}, fmt.Errorf("gateway sign-in: %w", err)
	}
	if err := p.cache.Save(tok); err != nil {
		p.logger.Warn("could not cache refresh token", zap.Error(err))
	}
	return id, nil
}

// SignOut forgets both the Google and the gateway session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.exchanger.Forget()
	err := p.cache.Clear()
	p.emit(nil)
	return err
}

// SignedIn reports the last state published.
func (p *Provider) SignedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signedIn
}

// Close stops publishing events.
func (p *Provider) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Provider) emit(id *session.Identity) {
	p.mu.Lock()
	p.signedIn = id != nil
	p.mu.Unlock()

	select {
	case p.events <- session.AuthEvent{Identity: id}:
	case <-p.done:
	}
}
