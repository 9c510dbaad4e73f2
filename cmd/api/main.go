package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/PaulBabatuyi/feedchat/internal/auth"
	"github.com/PaulBabatuyi/feedchat/internal/config"
	"github.com/PaulBabatuyi/feedchat/internal/data"
	"github.com/PaulBabatuyi/feedchat/internal/db"
	"github.com/PaulBabatuyi/feedchat/internal/logging"
	"github.com/PaulBabatuyi/feedchat/internal/metrics"
	"github.com/PaulBabatuyi/feedchat/internal/middleware"
	v1 "github.com/PaulBabatuyi/feedchat/proto/chat/v1"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

// stores is the storage backend chosen by STORE_DRIVER.
type stores struct {
	msgs  data.MessageStore
	users data.UserStore
	ready func(ctx context.Context) error
	close func()
}

func openStores(ctx context.Context, cfg *config.Server) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		gdb, err := data.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := data.NewSQLStore(gdb)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		return &stores{
			msgs:  store,
			users: store,
			ready: sqlDB.PingContext,
			close: func() { _ = sqlDB.Close() },
		}, nil
	default:
		dbClient, err := db.NewWithDatabase(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if err := dbClient.CreateIndexes(ctx); err != nil {
			_ = dbClient.Close(context.Background())
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return &stores{
			msgs:  data.NewMessagesStore(dbClient.MessagesCollection()),
			users: data.NewUsersStore(dbClient.UsersCollection()),
			ready: dbClient.Ping,
			close: func() { _ = dbClient.Close(context.Background()) },
		}, nil
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Verbose: cfg.Env == "development"})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	var jwtMgr *auth.JWTManager
	if len(cfg.JWTKeys) > 0 {
		jwtMgr = auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.TokenTTL)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	}

	hub := NewSubscriptionHub()

	var relay *RedisRelay
	if cfg.RedisURL != "" {
		relay, err = NewRedisRelay(ctx, cfg.RedisURL, logger.Named("relay"))
		if err != nil {
			return err
		}
		defer relay.Close()
	}

	// Small burst so a quick retry after a network blip is not rejected.
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiterStore.Stop()
	limited := map[string]bool{
		v1.ChatService_SignIn_FullMethodName: true,
		v1.ChatService_Append_FullMethodName: true,
	}

	var serverOpts []grpc.ServerOption
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS certs: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(
			metrics.UnaryInterceptor(),
			authUnaryInterceptor(jwtMgr),
			middleware.RateLimitUnaryInterceptor(limiterStore, limited),
		),
		grpc.ChainStreamInterceptor(
			authStreamInterceptor(jwtMgr),
			middleware.RateLimitStreamInterceptor(limiterStore, map[string]bool{
				v1.ChatService_Subscribe_FullMethodName: true,
			}),
		),
	)
	grpcServer := grpc.NewServer(serverOpts...)

	deps := serverDeps{
		Users:      st.users,
		Msgs:       st.msgs,
		Auth:       jwtMgr,
		Verifier:   auth.NewGoogleVerifier(cfg.GoogleClientID),
		Hub:        hub,
		Logger:     logger.Named("chat"),
		WindowSize: cfg.WindowSize,
	}
	if relay != nil {
		deps.Relay = relay
	}
	v1.RegisterChatServiceServer(grpcServer, newServer(deps))

	lis, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	ops := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newOpsRouter(st.ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening",
			zap.String("addr", cfg.ListenAddr()),
			zap.String("store", cfg.StoreDriver))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("ops server listening", zap.String("addr", cfg.MetricsAddr))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx, hub) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		// Subscribe streams only end when clients leave.
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			grpcServer.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
