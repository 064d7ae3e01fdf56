// Package launch starts external document-analysis jobs: it validates the
// source document, stores the job token, and dispatches to the analyzer.
package launch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/tokens"
)

// Analyzer starts the external OCR/document-analysis job. The service is
// opaque; only its shard-write side effect is consumed downstream.
type Analyzer interface {
	StartAnalysis(ctx context.Context, req Request) error
}

// Request carries everything the external service needs.
type Request struct {
	JobID          string
	CallbackToken  string
	SourceLocation string
	FileType       string
}

// Options configures one launch.
type Options struct {
	FileType   string
	WorkflowID string
	UserID     string
}

// Launcher validates and starts analysis jobs.
type Launcher struct {
	tokens   *tokens.Store
	store    storage.Store
	analyzer Analyzer
	ttl      time.Duration
	log      *slog.Logger
}

// LauncherConfig wires a Launcher.
type LauncherConfig struct {
	Tokens   *tokens.Store
	Store    storage.Store
	Analyzer Analyzer
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// NewLauncher creates a launcher.
func NewLauncher(cfg LauncherConfig) *Launcher {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Launcher{
		tokens:   cfg.Tokens,
		store:    cfg.Store,
		analyzer: cfg.Analyzer,
		ttl:      cfg.TokenTTL,
		log:      cfg.Logger,
	}
}

// Launch validates the source, mints a job id, stores the job token under
// callbackToken, and starts the external analysis. If dispatch fails the
// token is removed so no orphan blocks a later relaunch of the same job.
func (l *Launcher) Launch(ctx context.Context, callbackToken, sourceLocation string, opts Options) (string, error) {
	if strings.TrimSpace(callbackToken) == "" {
		return "", fault.New(fault.Validation, "MissingCallbackToken", "callback token is required")
	}
	if strings.TrimSpace(sourceLocation) == "" {
		return "", fault.New(fault.Validation, "MissingSource", "source location is required")
	}

	fileType := strings.ToLower(opts.FileType)
	if fileType == "" {
		fileType = "pdf"
	}
	if fileType == "pdf" {
		if err := l.validatePDF(ctx, sourceLocation); err != nil {
			return "", err
		}
	}

	jobID := uuid.New().String()
	tok := tokens.JobToken{
		JobID:          jobID,
		CallbackToken:  callbackToken,
		FileType:       fileType,
		WorkflowID:     opts.WorkflowID,
		UserID:         opts.UserID,
		SourceLocation: sourceLocation,
		ExpiresAt:      time.Now().Add(l.ttl),
	}
	if err := l.tokens.Put(ctx, tok); err != nil {
		return "", fmt.Errorf("failed to store job token: %w", err)
	}

	err := l.analyzer.StartAnalysis(ctx, Request{
		JobID:          jobID,
		CallbackToken:  callbackToken,
		SourceLocation: sourceLocation,
		FileType:       fileType,
	})
	if err != nil {
		if delErr := l.tokens.Delete(ctx, jobID); delErr != nil {
			l.log.Error("failed to remove token after dispatch failure",
				"job_id", jobID, "error", delErr)
		}
		return "", fault.Wrap(fault.ExternalService, "AnalysisDispatch", err,
			"failed to start analysis for %s", sourceLocation)
	}

	l.log.Info("analysis launched", "job_id", jobID, "source", sourceLocation, "file_type", fileType)
	return jobID, nil
}

func (l *Launcher) validatePDF(ctx context.Context, sourceLocation string) error {
	data, err := l.store.Get(ctx, sourceLocation)
	if err != nil {
		return fault.Wrap(fault.Validation, "SourceUnreadable", err,
			"cannot read source document %q", sourceLocation)
	}
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return fault.Wrap(fault.Validation, "SourceInvalid", err,
			"source %q is not a readable PDF", sourceLocation)
	}
	if pages == 0 {
		return fault.New(fault.Validation, "SourceEmpty", "source %q has no pages", sourceLocation)
	}
	return nil
}
