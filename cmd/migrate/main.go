package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/db"
	"go.uber.org/zap"
)

// Usage: migrate [-dir migrations] <up|down|status|version|redo|reset|up-to N|down-to N>

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] <command> [args]")
		os.Exit(2)
	}

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if *dir == "" {
		*dir = cfg.MigrationsDir
	}

	sqlDB, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := db.Migrate(context.Background(), sqlDB, db.MigrationsFS(*dir), args[0], log, args[1:]...); err != nil {
		log.Fatal("migration failed", zap.String("command", args[0]), zap.Error(err))
	}
}
