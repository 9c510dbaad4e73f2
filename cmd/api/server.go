package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/feedchat/internal/auth"
	"github.com/PaulBabatuyi/feedchat/internal/data"
	v1 "github.com/PaulBabatuyi/feedchat/proto/chat/v1"
)

// publisher tells other gateway replicas that a message was appended.
type publisher interface {
	Publish(ctx context.Context) error
}

// Server implements the chat service and contains references to stores and auth logic.
type Server struct {
	v1.UnimplementedChatServiceServer

	users      data.UserStore
	msgs       data.MessageStore
	auth       *auth.JWTManager
	verifier   auth.IDTokenVerifier
	hub        *SubscriptionHub
	relay      publisher
	logger     *zap.Logger
	windowSize int
}

type serverDeps struct {
	Users    data.UserStore
	Msgs     data.MessageStore
	Auth     *auth.JWTManager
	Verifier auth.IDTokenVerifier
	Hub      *SubscriptionHub
	// Relay may be nil on a single replica.
	Relay  publisher
	Logger *zap.Logger
	// WindowSize caps the live window a subscriber may ask for.
	WindowSize int
}

// newServer returns a ready-to-use Server wired with stores and auth manager.
func newServer(d serverDeps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Hub == nil {
		d.Hub = NewSubscriptionHub()
	}
	if d.WindowSize <= 0 {
		d.WindowSize = 50
	}
	return &Server{
		users:      d.Users,
		msgs:       d.Msgs,
		auth:       d.Auth,
		verifier:   d.Verifier,
		hub:        d.Hub,
		relay:      d.Relay,
		logger:     d.Logger,
		windowSize: d.WindowSize,
	}
}
