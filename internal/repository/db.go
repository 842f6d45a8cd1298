package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open creates a pgx pool and wraps it in an ent SQL driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, *pgxpool.Pool, error) {
	logger.Info("connecting to database", "dialect", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "review-orchestrator"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	logger.Info("successfully connected to database")
	return drv, pool, nil
}

const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// OpenSQLite opens a modernc SQLite database. The DSN must enable the
// foreign_keys pragma and should set a busy timeout and immediate
// transactions, e.g.
// "file:review.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate".
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*entsql.Driver, error) {
	logger.Info("opening sqlite database", "dsn", dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	return entsql.OpenDB(dialect.SQLite, db), nil
}

// Close closes the database connections gracefully
func Close(drv *entsql.Driver, pool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("closing database connections")
	if drv != nil {
		if err := drv.Close(); err != nil {
			logger.Error("failed to close sql driver", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func HealthCheck(ctx context.Context, drv *entsql.Driver, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := drv.DB().PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// Database is an opened, migrated database with its repositories.
type Database struct {
	Driver *entsql.Driver
	Store  *Store
	pool   *pgxpool.Pool
	tmpDir string
	logger *slog.Logger
}

// Cleanup closes every connection held by db and removes a scratch database.
func (db *Database) Cleanup() {
	Close(db.Driver, db.pool, db.logger)
	if db.tmpDir != "" {
		_ = os.RemoveAll(db.tmpDir)
	}
}

// InitDatabase opens Postgres when cfg.DSN is set and SQLite otherwise, then
// applies the schema. scratch forces a throwaway SQLite database that
// Cleanup deletes.
func InitDatabase(ctx context.Context, cfg common.DatabaseConfig, scratch bool, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db := &Database{logger: logger}

	var err error
	switch {
	case scratch:
		if db.tmpDir, err = os.MkdirTemp("", "review-*"); err != nil {
			return nil, err
		}
		db.Driver, err = OpenSQLite(ctx, "file:"+filepath.Join(db.tmpDir, "review.db")+sqlitePragmas, logger)
	case cfg.DSN != "":
		db.Driver, db.pool, err = Open(ctx, Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	default:
		db.Driver, err = OpenSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		db.Cleanup()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := HealthCheck(ctx, db.Driver, 5*time.Second, logger); err != nil {
		db.Cleanup()
		return nil, fmt.Errorf("database health: %w", err)
	}
	if err := Migrate(ctx, db.Driver); err != nil {
		db.Cleanup()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db.Store = NewStore(db.Driver, logger)
	logger.Info("database ready", "dialect", db.Driver.Dialect())
	return db, nil
}
