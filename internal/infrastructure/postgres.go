package infrastructure

import (
	"context"
	"database/sql"
	"embed"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"remnabot/internal/config"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type PostgresClient struct {
	Pool *pgxpool.Pool
	DB   *sqlx.DB
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse connection string")
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "unable to ping database")
	}

	return &PostgresClient{
		Pool: pool,
		DB:   sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
	}, nil
}

func (p *PostgresClient) Close() {
	_ = p.DB.Close()
	p.Pool.Close()
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }

// Migrate applies the embedded migrations. command is one of up, down,
// status, version or redo.
func Migrate(db *sql.DB, command string, logger *zap.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{log: logger.Named("migrate").Sugar()})

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up", "down", "status", "version", "redo":
		if err := goose.RunContext(context.Background(), command, db, "migrations"); err != nil {
			return errors.Wrapf(err, "migrate %s", command)
		}
		return nil
	default:
		return errors.Errorf("unknown migrate command %q", command)
	}
}
