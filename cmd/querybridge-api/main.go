package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querybridge/querybridge/internal/api"
	"github.com/querybridge/querybridge/internal/assistant"
	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/bridge"
	"github.com/querybridge/querybridge/internal/config"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/observability"
	"github.com/querybridge/querybridge/internal/query"
	duckdbengine "github.com/querybridge/querybridge/internal/query/duckdb"
	postgresengine "github.com/querybridge/querybridge/internal/query/postgres"
	"github.com/querybridge/querybridge/internal/session"
	"github.com/querybridge/querybridge/internal/storage"
	s3store "github.com/querybridge/querybridge/internal/storage/s3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv("querybridge-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	engines, readiness, closeEngines, err := buildEngines(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize query backend", slog.String("backend", cfg.Engine.Backend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeEngines()

	model, err := buildModel(cfg)
	if err != nil {
		logger.Error("failed to initialize language model", slog.String("provider", cfg.AI.Provider), slog.Any("error", err))
		os.Exit(1)
	}
	generator, err := nl2sql.NewGenerator(model, "", nl2sql.GeneratorConfig{
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	service, err := assistant.New(assistant.Options{
		Sessions:        session.NewStore(cfg.Session.MaxHistory),
		Engines:         engines,
		Translator:      generator,
		SchemaName:      cfg.Engine.SchemaName,
		DefaultRowLimit: cfg.Engine.DefaultRowLimit,
		QueryTimeout:    cfg.Engine.QueryTimeout,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: service,
		Readiness: api.CombineReadinessChecks(
			readiness,
			api.CheckFireboltConfig(cfg),
			api.CheckObjectStoreConfig(cfg),
			api.CheckModelConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend", cfg.Engine.Backend),
			slog.String("model", model.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// buildEngines returns the engine factory for the configured backend, a
// readiness check for it and a cleanup func.
func buildEngines(cfg config.Config, logger *slog.Logger) (assistant.EngineFactory, api.ReadinessCheck, func(), error) {
	noop := func() {}
	switch cfg.Engine.Backend {
	case query.BackendDuckDB:
		store, err := s3store.New(context.Background(), s3store.Config{
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
			return nil, nil, noop, err
		}
		return assistant.SharedEngine{
			Name:     query.BackendDuckDB,
			Database: cfg.ObjectStore.Dataset,
			Engine:   duckdbengine.NewEngine(store, cfg.ObjectStore.Dataset),
		}, datasetCheck(store, cfg.ObjectStore.Dataset), noop, nil
	case query.BackendPostgres:
		db, err := postgresengine.Open(context.Background(), postgresengine.DBConfig{
			DSN:             cfg.Postgres.DSN,
			ApplicationName: "querybridge-api",
			ReadOnly:        true,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, noop, err
		}
		return assistant.SharedEngine{
			Name:   query.BackendPostgres,
			Engine: postgresengine.NewEngine(db),
		}, pingCheck(db), func() { _ = db.Close() }, nil
	default:
		return assistant.FireboltEngines{
			Defaults: bridge.Config{
				ClientID:     cfg.Firebolt.ClientID,
				ClientSecret: cfg.Firebolt.ClientSecret,
				Account:      cfg.Firebolt.Account,
				Database:     cfg.Firebolt.Database,
				Engine:       cfg.Firebolt.Engine,
				Command:      cfg.Firebolt.Command,
				Args:         cfg.Firebolt.Args,
				Image:        cfg.Firebolt.Image,
			},
			Launcher: bridge.MCPLauncher{ClientName: cfg.Service.Name},
			Logger:   logger,
		}, nil, noop, nil
	}
}

func buildModel(cfg config.Config) (nl2sql.ChatModel, error) {
	if cfg.AI.Provider == config.ProviderOpenAI {
		return nl2sql.NewOpenAIModel(nl2sql.OpenAIConfig{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
	}
	return nl2sql.NewAnthropicModel(nl2sql.AnthropicConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
}

func pingCheck(db *sql.DB) api.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// datasetCheck is ready once the bucket is reachable and the dataset has a
// published manifest.
func datasetCheck(store *s3store.Store, dataset string) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if err := store.Ready(ctx); err != nil {
			return err
		}
		if _, err := storage.ReadManifest(ctx, store, dataset); err != nil {
			return fmt.Errorf("dataset %q is not published: %w", dataset, err)
		}
		return nil
	}
}
