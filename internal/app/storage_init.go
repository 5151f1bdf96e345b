package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/postgres"
)

// initStore выбирает хранилище: PostgreSQL, если задан DSN, иначе in-memory.
// Возвращает store, функцию завершения и ping-функцию для health check.
func initStore(ctx context.Context, cfg Config, logger *log.Entry) (domain.Store, func(), func(context.Context) error, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN is not set, using in-memory storage")
		store := memory.NewStore(memory.WithLogger(logger.WithField("storage", "memory")))
		return store, func() {}, nil, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger.WithField("storage", "postgres")))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("postgres storage initialized")
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
	return store, closeFn, store.Ping, nil
}
