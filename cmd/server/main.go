package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/api"
	"github.com/lalith-99/agencychat/internal/chat"
	"github.com/lalith-99/agencychat/internal/config"
	"github.com/lalith-99/agencychat/internal/observ"
	"github.com/lalith-99/agencychat/internal/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ctx is cancelled on SIGINT/SIGTERM. Startup uses it too, so a
	// Ctrl-C during a slow database connect aborts cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Open the store and run migrations
	// ---------------------------------------------------------------
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---------------------------------------------------------------
	// 4. Realtime: room registry + hub
	//
	// Without REDIS_URL rooms live in process memory, which is all a
	// single instance needs.
	// ---------------------------------------------------------------
	var registry realtime.RoomRegistry = realtime.NewMemoryRegistry()
	if cfg.RedisURL != "" {
		redisRegistry, err := realtime.NewRedisRegistry(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisRegistry.Close()
		registry = redisRegistry
		logger.Info("room registry in redis")
	}
	hub := realtime.NewHub(registry, logger)

	// ---------------------------------------------------------------
	// 5. Service + HTTP router
	// ---------------------------------------------------------------
	svc := chat.NewService(st.channels, st.messages, st.users, hub, logger)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, /v1 routes are unauthenticated")
	}
	router := api.NewRouter(api.RouterConfig{
		Chat:              svc,
		Users:             st.users,
		Store:             st.pinger,
		Hub:               hub,
		Logger:            logger,
		JWTSecret:         cfg.JWTSecret,
		SocketErrorEvents: cfg.SocketErrorEvents,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// ---------------------------------------------------------------
	// 6. Serve until a signal arrives, then drain
	// ---------------------------------------------------------------
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting agencychat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
