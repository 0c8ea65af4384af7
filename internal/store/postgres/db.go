package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const applicationName = "carebridge"

// PoolConfig tunes the database/sql pool. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery logs statements slower than this through Logger. Zero disables it.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

// Open connects through pgx's database/sql adapter, tags the session with the
// service name and pings before handing back a bun handle.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = applicationName
	}

	sqlDB := stdlib.OpenDB(*connCfg)
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database %s/%s: %w", connCfg.Host, connCfg.Database, err)
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if pool.SlowQuery > 0 && pool.Logger != nil {
		db.AddQueryHook(slowQueryHook{threshold: pool.SlowQuery, log: pool.Logger})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

type slowQueryHook struct {
	threshold time.Duration
	log       *slog.Logger
}

func (h slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if elapsed < h.threshold {
		return
	}
	h.log.WarnContext(ctx, "slow query",
		slog.String("operation", event.Operation()),
		slog.Duration("elapsed", elapsed),
		slog.Any("err", event.Err),
	)
}
