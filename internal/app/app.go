// Package app holds the process-wide collaborators of the chat client. One
// App is built at startup and handed to the session gate and the feed.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/feedchat/internal/client"
	"github.com/PaulBabatuyi/feedchat/internal/config"
	"github.com/PaulBabatuyi/feedchat/internal/feed"
	"github.com/PaulBabatuyi/feedchat/internal/googleauth"
	"github.com/PaulBabatuyi/feedchat/internal/session"
)

// App is the application context.
type App struct {
	Config *config.Client
	Logger *zap.Logger
	Gate   *session.Gate
	Store  feed.Store

	restore func(context.Context)
	closers []func() error
}

// New connects to the gateway and wires the Google provider to it.
func New(cfg *config.Client, logger *zap.Logger) (*App, error) {
	conn, err := client.Dial(client.Options{
		Addr:     cfg.Addr,
		Insecure: cfg.Insecure,
		Logger:   logger.Named("client"),
	})
	if err != nil {
		return nil, err
	}

	provider := googleauth.New(googleauth.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenCache:   cfg.TokenCache,
	}, conn, logger.Named("auth"))

	conn.SetRenewer(provider.Renew)

	a := NewWith(cfg, logger, provider, conn)
	a.restore = provider.Restore
	a.closers = append(a.closers, func() error {
		provider.Close()
		return nil
	}, conn.Close)
	return a, nil
}

// NewWith builds an App from ready-made collaborators.
func NewWith(cfg *config.Client, logger *zap.Logger, provider session.AuthProvider, store feed.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		Config: cfg,
		Logger: logger,
		Gate:   session.NewGate(provider, logger.Named("session")),
		Store:  store,
	}
}

// Restore publishes the initial auth state, signing in silently when a
// cached session exists. Providers without a restore step publish on their
// own.
func (a *App) Restore(ctx context.Context) {
	if a.restore != nil {
		a.restore(ctx)
	}
}

// NewFeed builds a feed controller for the signed-in user.
func (a *App) NewFeed(notify func(feed.SendResult)) *feed.Controller {
	opts := []feed.Option{feed.WithSendNotify(notify)}
	if a.Config != nil {
		opts = append(opts,
			feed.WithPageSize(a.Config.PageSize),
			feed.WithSendInterval(a.Config.SendInterval))
	}
	return feed.NewController(a.Store, a.Logger.Named("feed"), opts...)
}

// Close releases everything New opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
