package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/liraku/lirabot/core/logger"
)

// Connect opens the pool and retries until the database answers or ctx ends.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	start := time.Now()
	attrs := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}

	var (
		db  *sqlx.DB
		err error
	)
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err = sqlx.ConnectContext(attemptCtx, "postgres", cfg.URL())
		cancel()
		if err == nil {
			break
		}
		logger.Warn(ctx, logger.CompDB, "db.connect",
			append(attrs, slog.String("status", "retry"), slog.Int("attempts", attempt), logger.Err(err))...)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect: %w", err)
		case <-time.After(2 * time.Second):
		}
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}
	logger.Info(ctx, logger.CompDB, "db.connect",
		append(attrs,
			slog.String("status", "ok"),
			slog.Int("pool_open", cfg.MaxConnections),
			slog.Duration("duration", logger.Took(start)),
		)...)
	return db, nil
}
