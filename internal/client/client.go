// Package client talks to the chat gateway over gRPC on behalf of the
// terminal client.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/PaulBabatuyi/feedchat/internal/feed"
	"github.com/PaulBabatuyi/feedchat/internal/session"
	v1 "github.com/PaulBabatuyi/feedchat/proto/chat/v1"
)

// ErrNoSession is returned by store calls made before Exchange succeeded.
var ErrNoSession = errors.New("client: not signed in to the gateway")

const (
	appendAttempts = 3
	appendTimeout  = 5 * time.Second
	retryBackoff   = 250 * time.Millisecond
)

// Renewer signs in again after the gateway rejected the session token.
type Renewer func(ctx context.Context) error

// Options configures Dial.
type Options struct {
	Addr string
	// Insecure uses plaintext; the session token is still sent.
	Insecure bool
	Logger   *zap.Logger
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Client is the gateway connection shared by the auth provider and the feed.
type Client struct {
	conn   *grpc.ClientConn
	rpc    v1.ChatServiceClient
	creds  *tokenCredentials
	logger *zap.Logger

	appendTimeout time.Duration
	retryBackoff  time.Duration

	mu       sync.Mutex
	renew    Renewer
	renewals singleflight.Group
}

// Dial creates the connection. No I/O happens until the first call.
func Dial(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	creds := &tokenCredentials{requireTLS: !opts.Insecure}

	transport := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if opts.Insecure {
		transport = insecure.NewCredentials()
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithPerRPCCredentials(creds),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	return &Client{
		conn:   conn,
		rpc:    v1.NewChatServiceClient(conn),
		creds:  creds,
		logger: logger,

		appendTimeout: appendTimeout,
		retryBackoff:  retryBackoff,
	}, nil
}

// SetRenewer installs the hook run when a call fails with Unauthenticated.
// The call is retried once if it succeeds.
func (c *Client) SetRenewer(fn Renewer) {
	c.mu.Lock()
	c.renew = fn
	c.mu.Unlock()
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Exchange trades a Google ID token for a gateway session.
func (c *Client) Exchange(ctx context.Context, idToken string) (session.Identity, error) {
	resp, err := c.rpc.SignIn(ctx, &v1.SignInRequest{IdToken: idToken})
	if err != nil {
		return session.Identity{}, err
	}
	c.creds.set(resp.GetToken())
	c.logger.Debug("gateway session issued",
		zap.String("email", resp.GetEmail()),
		zap.Time("expires_at", resp.GetExpiresAt().AsTime()))
	return session.Identity{
		Email:    resp.GetEmail(),
		PhotoURL: resp.GetPhotoUrl(),
		Name:     resp.GetName(),
	}, nil
}

// Forget drops the gateway session.
func (c *Client) Forget() {
	c.creds.set("")
}

// Subscribe implements feed.Store.
func (c *Client) Subscribe(ctx context.Context, limit int) (feed.Subscription, error) {
	if c.creds.get() == "" {
		return nil, ErrNoSession
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{client: c, ctx: ctx, cancel: cancel, limit: int32(limit)}
	if err := c.call(ctx, sub.open); err != nil {
		cancel()
		return nil, err
	}
	return sub, nil
}

// ListBefore implements feed.Store.
func (c *Client) ListBefore(ctx context.Context, before feed.Cursor, limit int) ([]feed.Message, error) {
	if c.creds.get() == "" {
		return nil, ErrNoSession
	}
	req := &v1.ListBeforeRequest{
		Before: &v1.Cursor{CreatedAt: timestamppb.New(before.CreatedAt), Id: before.ID},
		Limit:  int32(limit),
	}
	var resp *v1.ListBeforeResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.rpc.ListBefore(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromWire(resp.GetMessages()), nil
}

// Append implements feed.Store. Transient failures are retried a few times
// with the same nonce, and the gateway stores a nonce at most once.
func (c *Client) Append(ctx context.Context, text string) (feed.Message, error) {
	if c.creds.get() == "" {
		return feed.Message{}, ErrNoSession
	}
	req := &v1.AppendRequest{Text: text, Nonce: uuid.NewString()}

	var err error
	for attempt := 1; ; attempt++ {
		var resp *v1.AppendResponse
		err = c.call(ctx, func() error {
			actx, cancel := context.WithTimeout(ctx, c.appendTimeout)
			defer cancel()
			var err error
			resp, err = c.rpc.Append(actx, req)
			return err
		})
		if err == nil {
			return messageFromWire(resp.GetMessage()), nil
		}
		if attempt == appendAttempts || !retryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Debug("append failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("nonce", req.GetNonce()),
			zap.Error(err))
		select {
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return feed.Message{}, err
		}
	}
	return feed.Message{}, err
}

// call runs fn and, when the gateway rejects the session, renews it and
// runs fn once more.
func (c *Client) call(ctx context.Context, fn func() error) error {
	err := fn()
	if status.Code(err) != codes.Unauthenticated {
		return err
	}
	if rerr := c.renewSession(ctx); rerr != nil {
		return err
	}
	return fn()
}

// renewSession runs the renewer once for every caller that hit the expired
// session at the same time.
func (c *Client) renewSession(ctx context.Context) error {
	c.mu.Lock()
	fn := c.renew
	c.mu.Unlock()
	if fn == nil {
		return ErrNoSession
	}
	_, err, _ := c.renewals.Do("session", func() (any, error) {
		c.logger.Info("gateway session rejected, renewing")
		return nil, fn(ctx)
	})
	return err
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

type subscription struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc
	limit  int32

	stream v1.ChatService_SubscribeClient
	// renewed is set after a renewal until the next snapshot arrives.
	renewed bool
}

func (s *subscription) open() error {
	stream, err := s.client.rpc.Subscribe(s.ctx, &v1.SubscribeRequest{Limit: s.limit})
	if err != nil {
		return err
	}
	s.stream = stream
	return nil
}

// Recv returns the next snapshot. The gateway checks the session when the
// stream opens, so a rejected session surfaces on the first Recv; the stream
// is reopened once after renewing it.
func (s *subscription) Recv() ([]feed.Message, error) {
	for {
		snap, err := s.stream.Recv()
		if err == nil {
			s.renewed = false
			return fromWire(snap.GetMessages()), nil
		}
		if s.renewed || status.Code(err) != codes.Unauthenticated {
			return nil, err
		}
		if rerr := s.client.renewSession(s.ctx); rerr != nil {
			return nil, err
		}
		s.renewed = true
		if err := s.open(); err != nil {
			return nil, err
		}
	}
}

func (s *subscription) Close() error {
	s.cancel()
	return nil
}

func messageFromWire(m *v1.ChatMessage) feed.Message {
	return feed.Message{
		ID:        m.GetId(),
		Text:      m.GetText(),
		Sender:    m.GetSender(),
		CreatedAt: m.GetCreatedAt().AsTime(),
	}
}

func fromWire(msgs []*v1.ChatMessage) []feed.Message {
	out := make([]feed.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFromWire(m))
	}
	return out
}
