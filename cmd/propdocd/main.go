package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/propdoc/analyzer/internal/batch"
	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/export"
	"github.com/propdoc/analyzer/internal/extract"
	"github.com/propdoc/analyzer/internal/llm/openai"
	"github.com/propdoc/analyzer/internal/pipeline"
	"github.com/propdoc/analyzer/internal/repository"
	"github.com/propdoc/analyzer/internal/server"
	"github.com/propdoc/analyzer/internal/stage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store.init_failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	st, err := newStage(ctx, cfg, logger)
	if err != nil {
		logger.Error("stage.init_failed", "error", err)
		os.Exit(1)
	}

	completer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	extractor := extract.New(logger)
	orch := batch.New(completer, cfg.Batch.CallTimeout, logger)
	proc := pipeline.NewProcessor(extractor.Extract, st, store, orch, cfg.Stage.SignedURLTTL, logger)

	handlers := server.NewHandlers(proc, store, export.NewService(store, logger), category.NewSchema(), cfg, logger)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http.serving", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http.shutdown_error", "error", err)
	}
}

// newStore picks Postgres when DB_URL is set, SQLite otherwise.
func newStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.Database.DSN != "" {
		pg, err := repository.NewPostgresStore(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
	return repository.NewSQLiteStore(ctx, cfg.Database.SQLitePath, logger)
}

// newStage picks GCS when STAGE_BUCKET is set, local filesystem otherwise.
func newStage(ctx context.Context, cfg *common.Config, logger *slog.Logger) (stage.Stage, error) {
	if cfg.Stage.Bucket != "" {
		return stage.NewGCSStage(ctx, cfg.Stage.Bucket, logger)
	}
	return stage.NewFSStage(cfg.Stage.LocalDir, logger)
}
