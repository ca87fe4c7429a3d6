package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/querybridge/querybridge/internal/config"
	"github.com/querybridge/querybridge/internal/migrations"
	"github.com/querybridge/querybridge/internal/observability"
	postgresengine "github.com/querybridge/querybridge/internal/query/postgres"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down")
	steps := flag.Int("steps", 1, "scripts to revert when direction is down")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("querybridge-migrate")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.Postgres.DSN == "" {
		logger.Error("QUERYBRIDGE_POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := postgresengine.Open(ctx, postgresengine.DBConfig{
		DSN:             cfg.Postgres.DSN,
		ApplicationName: "querybridge-migrate",
	})
	if err != nil {
		logger.Error("failed to open postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db)
		if err != nil {
			logger.Error("migration up failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Int("count", applied))
	case "down":
		reverted, err := runner.Down(ctx, db, *steps)
		if err != nil {
			logger.Error("migration down failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations reverted", slog.Int("count", reverted))
	default:
		logger.Error("invalid direction", slog.String("direction", *direction))
		os.Exit(2)
	}
}
