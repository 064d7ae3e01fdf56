package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the object store and signal completed jobs",
	Long: `Start the shard-coordination loop.

Collate watches the configured storage root for shard writes from the
external analysis service. Each write triggers a completeness check for
its job; when the triggering shard's number equals the declared total,
the shards are merged in order and the orchestrator is signaled through
the configured callback URL.

Expired job tokens are swept periodically; jobs whose shards never
complete are reclaimed silently and fail at the orchestrator's own
timeout.

Examples:
  collate serve                          # Use ./config.yaml
  collate serve --config /etc/collate.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		mgr.WatchConfig()
		cfg := mgr.Get()

		if cfg.Callback.URL == "" {
			return fmt.Errorf("callback.url is required in serve mode")
		}
		cb := signal.NewHTTPCallback(signal.HTTPCallbackConfig{
			BaseURL:    cfg.Callback.URL,
			Timeout:    cfg.Callback.Timeout,
			MaxRetries: cfg.Callback.MaxRetries,
		})

		svcs, err := buildServices(mgr, cb, logger)
		if err != nil {
			return err
		}
		defer svcs.Tokens.Close()

		watcher, err := storage.NewWatcher(cfg.Storage.Root, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", "error", err)
			}
		}()

		purgeEvery := cfg.Tokens.PurgeInterval
		if purgeEvery <= 0 {
			purgeEvery = 5 * time.Minute
		}
		ticker := time.NewTicker(purgeEvery)
		defer ticker.Stop()

		logger.Info("collate serving", "root", cfg.Storage.Root, "callback", cfg.Callback.URL)
		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return nil
			case <-ticker.C:
				if _, err := svcs.Tokens.PurgeExpired(ctx); err != nil {
					logger.Error("token purge failed", "error", err)
				}
			case ev, ok := <-watcher.Events():
				if !ok {
					return nil
				}
				outcome, err := svcs.Handler.HandleEvent(ctx, ev)
				if err != nil {
					// The filesystem watcher has no redelivery; log and move
					// on, the next shard write re-runs the check.
					logger.Error("event handling failed", "key", ev.Key, "error", err)
					continue
				}
				logger.Debug("event handled", "key", ev.Key, "outcome", string(outcome))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
