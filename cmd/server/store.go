package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/config"
	"github.com/lalith-99/agencychat/internal/db"
	"github.com/lalith-99/agencychat/internal/repository"
	"github.com/lalith-99/agencychat/internal/repository/memory"
	"github.com/lalith-99/agencychat/internal/repository/postgres"
	"github.com/lalith-99/agencychat/internal/repository/sqlite"
)

// stores is one backend's repositories plus its health check and cleanup.
type stores struct {
	channels repository.ChannelRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	pinger   repository.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool := database.Pool()
		return &stores{
			channels: postgres.NewChannelStore(pool),
			messages: postgres.NewMessageStore(pool),
			users:    postgres.NewUserStore(pool),
			pinger:   database,
			close:    database.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return &stores{
			channels: store.Channels(),
			messages: store.Messages(),
			users:    store.Users(),
			pinger:   store,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("close sqlite", zap.Error(err))
				}
			},
		}, nil

	case config.DriverMemory:
		store := memory.New()
		logger.Warn("using in-memory store, data is lost on restart")
		return &stores{
			channels: store.Channels(),
			messages: store.Messages(),
			users:    store.Users(),
			pinger:   store,
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
