package client

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/PaulBabatuyi/feedchat/internal/feed"
	v1 "github.com/PaulBabatuyi/feedchat/proto/chat/v1"
)

const bufSize = 1024 * 1024

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	v1.UnimplementedChatServiceServer

	mu          sync.Mutex
	token       string
	failAppends int
	nonces      []string
	cursors     []*v1.Cursor
}

func (g *fakeGateway) valid(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return bearer(ctx) == g.token
}

// expire rotates the accepted token so the one the client holds is stale.
func (g *fakeGateway) expire() {
	g.mu.Lock()
	g.token += "-renewed"
	g.mu.Unlock()
}

func bearer(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimPrefix(vals[0], "Bearer ")
}

func (g *fakeGateway) SignIn(_ context.Context, req *v1.SignInRequest) (*v1.SignInResponse, error) {
	if req.GetIdToken() != "google-token" {
		return nil, status.Error(codes.Unauthenticated, "bad id token")
	}
	g.mu.Lock()
	token := g.token
	g.mu.Unlock()
	return &v1.SignInResponse{
		Token:     token,
		Email:     "alice@example.com",
		PhotoUrl:  "https://p/a.png",
		ExpiresAt: timestamppb.New(t0.Add(time.Hour)),
	}, nil
}

func (g *fakeGateway) Subscribe(req *v1.SubscribeRequest, stream v1.ChatService_SubscribeServer) error {
	if !g.valid(stream.Context()) {
		return status.Error(codes.Unauthenticated, "no session")
	}
	for i := 0; i < 2; i++ {
		snap := &v1.Snapshot{}
		for j := int32(0); j < req.GetLimit(); j++ {
			snap.Messages = append(snap.Messages, &v1.ChatMessage{
				Id:        string(rune('a' + i + int(j))),
				CreatedAt: timestamppb.New(t0.Add(time.Duration(i) * time.Minute)),
			})
		}
		if err := stream.Send(snap); err != nil {
			return err
		}
	}
	return nil
}

func (g *fakeGateway) ListBefore(ctx context.Context, req *v1.ListBeforeRequest) (*v1.ListBeforeResponse, error) {
	if !g.valid(ctx) {
		return nil, status.Error(codes.Unauthenticated, "no session")
	}
	g.mu.Lock()
	g.cursors = append(g.cursors, req.GetBefore())
	g.mu.Unlock()
	return &v1.ListBeforeResponse{Messages: []*v1.ChatMessage{
		{Id: "old", Text: "older", Sender: "bob@example.com", CreatedAt: timestamppb.New(t0.Add(-time.Hour))},
	}}, nil
}

func (g *fakeGateway) Append(ctx context.Context, req *v1.AppendRequest) (*v1.AppendResponse, error) {
	if !g.valid(ctx) {
		return nil, status.Error(codes.Unauthenticated, "no session")
	}
	g.mu.Lock()
	g.nonces = append(g.nonces, req.GetNonce())
	fail := g.failAppends > 0
	if fail {
		g.failAppends--
	}
	g.mu.Unlock()
	if fail {
		return nil, status.Error(codes.Unavailable, "response lost")
	}
	return &v1.AppendResponse{Message: &v1.ChatMessage{
		Id: "new", Text: req.GetText(), Sender: "alice@example.com", CreatedAt: timestamppb.New(t0),
	}}, nil
}

func startGateway(t *testing.T) (*Client, *fakeGateway) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	gw := &fakeGateway{token: "session"}
	v1.RegisterChatServiceServer(s, gw)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := Dial(Options{
		Addr:     "passthrough:///bufnet",
		Insecure: true,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		},
	})
	require.NoError(t, err)
	c.retryBackoff = time.Millisecond
	t.Cleanup(func() { _ = c.Close() })
	return c, gw
}

// renewWith installs a renewer that signs in again with idToken and counts
// its calls.
func renewWith(c *Client, idToken string) *int {
	var calls int
	c.SetRenewer(func(ctx context.Context) error {
		calls++
		if _, err := c.Exchange(ctx, idToken); err != nil {
			c.Forget()
			return err
		}
		return nil
	})
	return &calls
}

func TestClient_CallsNeedSession(t *testing.T) {
	c, _ := startGateway(t)
	ctx := context.Background()

	_, err := c.Append(ctx, "hi")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.ListBefore(ctx, feed.Cursor{}, 10)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.Subscribe(ctx, 10)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = c.Exchange(ctx, "forged")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestClient_ExchangeThenStore(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()

	id, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "https://p/a.png", id.PhotoURL)

	m, err := c.Append(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Text)
	assert.True(t, m.CreatedAt.Equal(t0))
	_, err = c.Append(ctx, "hello")
	require.NoError(t, err)
	require.Len(t, gw.nonces, 2)
	assert.NotEqual(t, gw.nonces[0], gw.nonces[1])

	cur := feed.Cursor{CreatedAt: t0, ID: "x"}
	page, err := c.ListBefore(ctx, cur, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "older", page[0].Text)
	assert.True(t, gw.cursors[0].GetCreatedAt().AsTime().Equal(t0))
	assert.Equal(t, "x", gw.cursors[0].GetId())

	c.Forget()
	_, err = c.Append(ctx, "after sign-out")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClient_Subscribe(t *testing.T) {
	c, _ := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)

	sub, err := c.Subscribe(ctx, 3)
	require.NoError(t, err)
	defer sub.Close()

	first, err := sub.Recv()
	require.NoError(t, err)
	assert.Len(t, first, 3)
	second, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "b", second[0].ID)

	_, err = sub.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_AppendRetriesWithSameNonce(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	gw.failAppends = 2

	m, err := c.Append(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Text)
	require.Len(t, gw.nonces, 3)
	assert.Equal(t, gw.nonces[0], gw.nonces[1])
	assert.Equal(t, gw.nonces[0], gw.nonces[2])
}

func TestClient_AppendGivesUp(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	gw.failAppends = 10

	_, err = c.Append(ctx, "hello")
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Len(t, gw.nonces, appendAttempts)
}

func TestClient_RenewsExpiredSession(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	calls := renewWith(c, "google-token")

	gw.expire()
	m, err := c.Append(ctx, "after expiry")
	require.NoError(t, err)
	assert.Equal(t, "after expiry", m.Text)
	assert.Equal(t, 1, *calls)

	_, err = c.ListBefore(ctx, feed.Cursor{CreatedAt: t0, ID: "x"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestClient_FailedRenewalEndsSession(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	calls := renewWith(c, "revoked-google-token")

	gw.expire()
	_, err = c.Append(ctx, "after expiry")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, 1, *calls)
	assert.Len(t, gw.nonces, 0)

	_, err = c.Append(ctx, "again")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClient_SubscribeRenewsExpiredSession(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)
	calls := renewWith(c, "google-token")

	gw.expire()
	sub, err := c.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer sub.Close()

	snap, err := sub.Recv()
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, *calls)
}

func TestClient_UnauthenticatedWithoutRenewer(t *testing.T) {
	c, gw := startGateway(t)
	ctx := context.Background()
	_, err := c.Exchange(ctx, "google-token")
	require.NoError(t, err)

	gw.expire()
	_, err = c.ListBefore(ctx, feed.Cursor{CreatedAt: t0, ID: "x"}, 10)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
