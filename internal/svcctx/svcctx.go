// Package svcctx bundles the wired core services so command
// implementations share one assembly point. It sits below cmd to avoid
// import cycles between the commands and the packages they wire.
package svcctx

import (
	"log/slog"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/ingest"
	"github.com/jackzampolin/collate/internal/launch"
	"github.com/jackzampolin/collate/internal/pipeline"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/tokens"
)

// Services holds the wired core services. The coordination set (Store,
// Tokens, Handler) is always populated; Waiter, Launcher, and Runner only
// in commands that run the orchestrator side.
type Services struct {
	Config   *config.Manager
	Store    storage.Store
	Tokens   *tokens.Store
	Waiter   *signal.Waiter
	Handler  *ingest.Handler
	Launcher *launch.Launcher
	Runner   *pipeline.Runner
	Logger   *slog.Logger
}
