package main

import (
	"log/slog"
	"os"

	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		slog.Error("usage: go run scripts/run_migrations.go [up|down]")
		os.Exit(2)
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		slog.Error("direction must be 'up' or 'down'", "direction", direction)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Log.NewLogger())

	if err := database.Migrate(cfg.Database.URL, direction); err != nil {
		slog.Error("run migrations", "direction", direction, "error", err)
		os.Exit(1)
	}

	slog.Info("migrations applied", "direction", direction)
}
