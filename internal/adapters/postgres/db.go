package postgres

import (
    "context"
    "database/sql"
    "embed"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
    _ "github.com/jackc/pgx/v5/stdlib"
    "github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
    Pool *pgxpool.Pool

    threatMin int
    safeMax   int
}

// Connect opens the pool, verifies connectivity, and applies pending
// migrations. The risk thresholds parameterize the statistics aggregate.
func Connect(ctx context.Context, url string, threatRiskMin, safeRiskMax int) (*DB, error) {
    cfg, err := pgxpool.ParseConfig(url)
    if err != nil {
        return nil, err
    }
    cfg.MaxConns = 10
    cfg.HealthCheckPeriod = 30 * time.Second
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil {
        return nil, err
    }
    if err := pool.Ping(ctx); err != nil {
        pool.Close()
        return nil, err
    }
    if err := migrate(ctx, url); err != nil {
        pool.Close()
        return nil, fmt.Errorf("migrate: %w", err)
    }
    return &DB{Pool: pool, threatMin: threatRiskMin, safeMax: safeRiskMax}, nil
}

func migrate(ctx context.Context, url string) error {
    sqldb, err := sql.Open("pgx", url)
    if err != nil {
        return err
    }
    defer sqldb.Close()
    goose.SetBaseFS(migrationsFS)
    if err := goose.SetDialect("postgres"); err != nil {
        return err
    }
    return goose.UpContext(ctx, sqldb, "migrations")
}

func (db *DB) Close() { db.Pool.Close() }
