package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/ingest"
	"github.com/jackzampolin/collate/internal/merge"
	"github.com/jackzampolin/collate/internal/shards"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/svcctx"
	"github.com/jackzampolin/collate/internal/tokens"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// buildServices wires the coordination core: object store, token store,
// completeness detection, merge, and signaling through cb.
func buildServices(mgr *config.Manager, cb signal.Callback, logger *slog.Logger) (*svcctx.Services, error) {
	cfg := mgr.Get()

	store, err := storage.NewFSStore(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Tokens.Path), 0o755); err != nil {
		return nil, err
	}
	ts, err := tokens.Open(cfg.Tokens.Path, logger)
	if err != nil {
		return nil, err
	}

	detector := shards.NewDetector(store, logger)
	merger := merge.NewMerger(store, logger)
	signaler := signal.NewSignaler(ts, cb, logger)
	handler := ingest.NewHandler(ts, detector, merger, signaler, logger)

	return &svcctx.Services{
		Config:  mgr,
		Store:   store,
		Tokens:  ts,
		Handler: handler,
		Logger:  logger,
	}, nil
}
