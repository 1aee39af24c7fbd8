// ABOUTME: Gateway orchestrator that wires the credential store, auth and analysis services
// ABOUTME: Runs the HTTP server and optional gRPC health server until shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/algosensei/sensei-gateway/internal/analysis"
	"github.com/algosensei/sensei-gateway/internal/auth"
	"github.com/algosensei/sensei-gateway/internal/config"
	"github.com/algosensei/sensei-gateway/internal/store"
)

// shutdownTimeout bounds graceful shutdown after Run's context ends.
const shutdownTimeout = 5 * time.Second

// Gateway owns the long-lived parts of the service and the servers that
// expose them.
type Gateway struct {
	config     *config.Config
	store      store.Store
	auth       *auth.Service
	analysis   *analysis.Service
	sessions   analysis.SessionStore
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	tailnet    *tailnet
	logger     *slog.Logger

	// serverID identifies this gateway instance in logs
	serverID string
}

// initStore opens the configured credential store and fails fast when the
// database cannot be reached.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := store.Open(ctx, store.Options{
		Driver:          store.Driver(cfg.Database.Driver),
		DSN:             cfg.Database.DataSource(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return s, nil
}

// initSessionStore builds the conversation session store selected by config.
func initSessionStore(ctx context.Context, cfg config.SessionsConfig) (analysis.SessionStore, error) {
	switch cfg.Store {
	case "redis":
		s, err := analysis.NewRedisSessionStore(ctx, analysis.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Prefix:     cfg.Redis.Prefix,
			TTL:        cfg.TTL,
			MaxHistory: cfg.MaxHistory,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing redis session store: %w", err)
		}
		return s, nil
	default:
		return analysis.NewMemorySessionStore(cfg.TTL, cfg.MaxSessions, cfg.MaxHistory), nil
	}
}

// newCompleter builds the model client from config.
func newCompleter(cfg config.LLMConfig) *analysis.OpenAICompleter {
	return analysis.NewOpenAICompleter(analysis.OpenAIConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
}

// NewPasswordHasher builds the argon2id hasher from config. Unset costs
// fall back to auth.DefaultArgon2Params.
func NewPasswordHasher(cfg config.PasswordConfig) *auth.Argon2Hasher {
	return auth.NewArgon2Hasher(auth.Argon2Params{
		Memory:      cfg.MemoryKiB,
		Iterations:  cfg.Iterations,
		Parallelism: cfg.Parallelism,
	})
}

// newAuthService builds the password hasher, token service and auth service.
func newAuthService(cfg config.AuthConfig, users store.UserStore, logger *slog.Logger) (*auth.Service, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.SecretKey), cfg.Algorithm, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	return auth.NewService(users, NewPasswordHasher(cfg.Password), tokens, logger), nil
}

// createGRPCServer returns a gRPC server that only carries the health service.
func createGRPCServer(hs *health.Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// New opens the store and session store named by cfg and builds a Gateway.
// Either store being unreachable is a startup error.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()

	s, err := initStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := initSessionStore(ctx, cfg.Sessions)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	gw, err := assemble(cfg, s, newCompleter(cfg.LLM), sessions, logger)
	if err != nil {
		_ = sessions.Close()
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// assemble builds a Gateway around already opened dependencies.
func assemble(cfg *config.Config, s store.Store, completer analysis.Completer, sessions analysis.SessionStore, logger *slog.Logger) (*Gateway, error) {
	authService, err := newAuthService(cfg.Auth, s, logger)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		auth:     authService,
		analysis: analysis.NewService(completer, sessions, logger),
		sessions: sessions,
		logger:   logger.With("component", "gateway"),
		serverID: generateServerID(),
	}

	if cfg.Server.GRPCAddr != "" {
		gw.health = health.NewServer()
		gw.grpcServer = createGRPCServer(gw.health)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the full HTTP handler: routes wrapped in the middleware chain.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.registerRoutes(mux)

	return chain(mux,
		recoverMiddleware(g.logger),
		requestIDMiddleware,
		requestLogMiddleware(g.logger),
		corsMiddleware(g.config.Debug, g.config.CORS.FrontendURL),
		auth.IdentityMiddleware(g.auth, g.logger),
	)
}

// listeners holds what the servers accept on. grpc is nil when the health
// server is disabled.
type listeners struct {
	http net.Listener
	grpc net.Listener
}

func (l listeners) close() {
	if l.http != nil {
		_ = l.http.Close()
	}
	if l.grpc != nil {
		_ = l.grpc.Close()
	}
}

// listen opens host sockets, or tailnet ones when tailscale is enabled.
func (g *Gateway) listen(ctx context.Context) (listeners, error) {
	var ls listeners
	srv := g.config.Server

	if !g.config.Tailscale.Enabled {
		g.logger.Info("starting gateway", "server_id", g.serverID, "http_addr", srv.HTTPAddr, "grpc_addr", srv.GRPCAddr)
		if g.grpcServer != nil {
			ln, err := net.Listen("tcp", srv.GRPCAddr)
			if err != nil {
				return ls, fmt.Errorf("listen gRPC %s: %w", srv.GRPCAddr, err)
			}
			ls.grpc = ln
		}
		ln, err := net.Listen("tcp", srv.HTTPAddr)
		if err != nil {
			ls.close()
			return listeners{}, fmt.Errorf("listen HTTP %s: %w", srv.HTTPAddr, err)
		}
		ls.http = ln
		return ls, nil
	}

	g.logger.Info("starting gateway on tailnet", "server_id", g.serverID)
	if srv.HTTPAddr != "" || srv.GRPCAddr != "" {
		g.logger.Warn("server addresses do not apply on the tailnet",
			"http_addr", srv.HTTPAddr,
			"grpc_addr", srv.GRPCAddr,
		)
	}

	tn, err := joinTailnet(ctx, g.config.Tailscale, g.logger)
	if err != nil {
		return ls, err
	}
	if g.grpcServer != nil {
		if ls.grpc, err = tn.listenHealth(); err != nil {
			_ = tn.Close()
			return listeners{}, err
		}
	}
	if ls.http, err = tn.listenHTTP(); err != nil {
		ls.close()
		_ = tn.Close()
		return listeners{}, err
	}
	g.tailnet = tn
	return ls, nil
}

// serve runs each server in group until it stops.
func (g *Gateway) serve(group *errgroup.Group, ls listeners) {
	if ls.grpc != nil {
		group.Go(func() error {
			g.logger.Info("gRPC health server listening", "addr", ls.grpc.Addr().String())
			g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			err := g.grpcServer.Serve(ls.grpc)
			if err == nil || errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("gRPC server: %w", err)
		})
	}

	group.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ls.http.Addr().String())
		err := g.httpServer.Serve(ls.http)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	})
}

// Run serves until ctx is canceled or a server fails, then shuts down.
// A clean shutdown returns nil.
func (g *Gateway) Run(ctx context.Context) error {
	ls, err := g.listen(ctx)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	g.serve(group, ls)

	group.Go(func() error {
		<-groupCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("stop requested")
		}
		// ctx is already done; shutdown gets its own budget.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return g.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// stopGRPC drains in-flight health RPCs, falling back to a hard stop when
// ctx runs out.
func (g *Gateway) stopGRPC(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.grpcServer.GracefulStop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// Shutdown stops the servers, then closes the session store and database.
// Every step runs; failures are joined.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down", "server_id", g.serverID)

	var errs []error
	record := func(step string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}

	record("http shutdown", g.httpServer.Shutdown(ctx))
	g.stopGRPC(ctx)
	if g.tailnet != nil {
		record("tailnet close", g.tailnet.Close())
	}
	record("session store close", g.sessions.Close())
	record("store close", g.store.Close())

	return errors.Join(errs...)
}

func generateServerID() string {
	return fmt.Sprintf("sensei-gateway-%d", time.Now().UnixNano()%1000000)
}
