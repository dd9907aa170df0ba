package db

import (
	"context"
	"database/sql"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ledger-market/backend/migrations"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// MigrationsFS returns dir when set, the migrations compiled into the binary otherwise.
func MigrationsFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

// RunMigrations applies every pending migration through the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, log *zap.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := Migrate(ctx, sqlDB, MigrationsFS(migrationsDir), "up", log); err != nil {
		return err
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Int64("version", version))
	return nil
}

// Migrate runs a goose command (up, down, status, version, redo, ...) against db.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, command string, log *zap.Logger, args ...string) error {
	goose.SetBaseFS(fsys)
	goose.SetLogger(zap.NewStdLog(log.Named("goose")))
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, db, ".", args...)
}
