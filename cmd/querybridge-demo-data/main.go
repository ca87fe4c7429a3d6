package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querybridge/querybridge/internal/config"
	"github.com/querybridge/querybridge/internal/demo/dataset"
	"github.com/querybridge/querybridge/internal/migrations"
	"github.com/querybridge/querybridge/internal/observability"
	"github.com/querybridge/querybridge/internal/query"
	postgresengine "github.com/querybridge/querybridge/internal/query/postgres"
	s3store "github.com/querybridge/querybridge/internal/storage/s3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv("querybridge-demo-data")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	dataCfg, err := dataset.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo dataset config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	tables := dataset.NewGenerator(dataCfg.Seed).Generate(dataCfg)
	if err := dataset.Check(tables, dataCfg.Events); err != nil {
		logger.Error("generated dataset failed consistency checks", slog.Any("error", err))
		os.Exit(1)
	}
	mix := dataset.Mix(tables.Events)
	logger.Info("demo dataset generated",
		slog.Int("campaigns", len(tables.Campaigns)),
		slog.Int("publishers", len(tables.Publishers)),
		slog.Int("events", len(tables.Events)),
		slog.Int("impressions", mix["impression"]),
		slog.Int("clicks", mix["click"]),
		slog.Int("conversions", mix["conversion"]),
		slog.Int64("seed", dataCfg.Seed),
		slog.Duration("elapsed", time.Since(start)),
	)

	if cfg.Engine.Backend == query.BackendPostgres {
		if err := loadPostgres(ctx, cfg, tables, logger); err != nil {
			logger.Error("failed to load demo dataset into postgres", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	uploader, err := dataset.NewUploader(store, logger)
	if err != nil {
		logger.Error("failed to initialize uploader", slog.Any("error", err))
		os.Exit(1)
	}

	manifest, err := uploader.Publish(ctx, cfg.ObjectStore.Dataset, dataCfg, tables)
	if err != nil {
		logger.Error("failed to publish demo dataset", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo dataset published",
		slog.String("dataset", manifest.Dataset),
		slog.String("bucket", cfg.ObjectStore.Bucket),
		slog.Int("files", len(manifest.Files)),
	)
}

// loadPostgres migrates the demo schema and replaces its rows.
func loadPostgres(ctx context.Context, cfg config.Config, tables dataset.Tables, logger *slog.Logger) error {
	db, err := postgresengine.Open(ctx, postgresengine.DBConfig{
		DSN:             cfg.Postgres.DSN,
		ApplicationName: "querybridge-demo-data",
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	applied, err := migrations.NewRunner().Up(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("demo schema migrated", slog.Int("applied", applied))

	return dataset.LoadPostgres(ctx, dataset.NewPGCopier(db), tables, logger)
}
