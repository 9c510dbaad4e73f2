package main

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/PaulBabatuyi/feedchat/internal/auth"
	"github.com/PaulBabatuyi/feedchat/internal/data"
	"github.com/PaulBabatuyi/feedchat/internal/metrics"
	"github.com/PaulBabatuyi/feedchat/internal/normalize"
	v1 "github.com/PaulBabatuyi/feedchat/proto/chat/v1"
)

// maxMessageRunes bounds a single message.
const maxMessageRunes = 4096

func toWire(m *data.Message) *v1.ChatMessage {
	return &v1.ChatMessage{
		Id:        m.ID,
		Text:      m.Text,
		Sender:    m.Sender,
		CreatedAt: timestamppb.New(m.CreatedAt),
	}
}

func toWireList(msgs []*data.Message) []*v1.ChatMessage {
	out := make([]*v1.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toWire(m))
	}
	return out
}

// SignIn verifies a Google ID token, records the user and returns a session token.
func (s *Server) SignIn(ctx context.Context, req *v1.SignInRequest) (*v1.SignInResponse, error) {
	if req.GetIdToken() == "" {
		return nil, status.Errorf(codes.InvalidArgument, "id_token is required")
	}

	id, err := s.verifier.Verify(ctx, req.GetIdToken())
	if err != nil {
		metrics.SignIns.WithLabelValues("rejected").Inc()
		s.logger.Info("sign-in rejected", zap.Error(err))
		return nil, status.Errorf(codes.Unauthenticated, "invalid id token")
	}

	user, err := s.users.UpsertUser(ctx, &data.User{
		Email:    id.Email,
		PhotoURL: id.PhotoURL,
		Name:     id.Name,
	})
	if err != nil {
		s.logger.Error("upsert user failed", zap.String("email", id.Email), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to record user")
	}

	token, expiresAt, err := s.auth.GenerateToken(auth.Identity{
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
		Name:     user.Name,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to generate token: %v", err)
	}

	metrics.SignIns.WithLabelValues("ok").Inc()
	return &v1.SignInResponse{
		Token:     token,
		Email:     user.Email,
		PhotoUrl:  user.PhotoURL,
		Name:      user.Name,
		ExpiresAt: timestamppb.New(expiresAt),
	}, nil
}

// Subscribe streams the newest messages now and again after every change
// until the client goes away.
func (s *Server) Subscribe(req *v1.SubscribeRequest, stream v1.ChatService_SubscribeServer) error {
	ctx := stream.Context()
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	limit := int64(req.GetLimit())
	if limit <= 0 {
		limit = data.DefaultPageSize
	}
	if limit > int64(s.windowSize) {
		limit = int64(s.windowSize)
	}

	// Register before the first read so no append between the two is missed.
	id, changed := s.hub.Register(claims.Email)
	defer s.hub.Unregister(claims.Email, id)

	if err := s.sendSnapshot(ctx, stream, limit); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := s.sendSnapshot(ctx, stream, limit); err != nil {
				return err
			}
		}
	}
}

func (s *Server) sendSnapshot(ctx context.Context, stream v1.ChatService_SubscribeServer, limit int64) error {
	msgs, err := s.msgs.Latest(ctx, limit)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to read messages: %v", err)
	}
	if err := stream.Send(&v1.Snapshot{Messages: toWireList(msgs)}); err != nil {
		return status.Errorf(codes.Internal, "failed to send snapshot: %v", err)
	}
	metrics.SnapshotsSent.Inc()
	return nil
}

// ListBefore returns one page of messages strictly older than the cursor.
func (s *Server) ListBefore(ctx context.Context, req *v1.ListBeforeRequest) (*v1.ListBeforeResponse, error) {
	before := req.GetBefore()
	if before == nil || before.GetCreatedAt() == nil {
		return nil, status.Errorf(codes.InvalidArgument, "before cursor is required")
	}

	msgs, err := s.msgs.Before(ctx, data.Cursor{
		CreatedAt: before.GetCreatedAt().AsTime(),
		ID:        before.GetId(),
	}, int64(req.GetLimit()))
	if errors.Is(err, data.ErrInvalidCursor) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid cursor")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to read messages: %v", err)
	}
	return &v1.ListBeforeResponse{Messages: toWireList(msgs)}, nil
}

// Append stores a message from the signed-in user and wakes every subscriber.
func (s *Server) Append(ctx context.Context, req *v1.AppendRequest) (*v1.AppendResponse, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	text := normalize.Text(req.GetText())
	if normalize.Blank(text) {
		return nil, status.Errorf(codes.InvalidArgument, "message text is empty")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, status.Errorf(codes.InvalidArgument, "message longer than %d characters", maxMessageRunes)
	}

	saved, err := s.msgs.Append(ctx, claims.Email, text, req.GetNonce())
	if err != nil {
		s.logger.Error("append failed", zap.String("email", claims.Email), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to save message")
	}
	metrics.MessagesAppended.Inc()

	s.hub.Broadcast()
	if s.relay != nil {
		if err := s.relay.Publish(ctx); err != nil {
			s.logger.Warn("relay publish failed", zap.Error(err))
		}
	}

	return &v1.AppendResponse{Message: toWire(saved)}, nil
}
