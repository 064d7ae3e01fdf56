// Package ingest handles shard-arrival notifications: one stateless
// invocation per event, deciding whether the triggering shard completes
// its job and, if so, merging and signaling exactly once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/merge"
	"github.com/jackzampolin/collate/internal/shards"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/tokens"
)

// Outcome summarizes what one event produced.
type Outcome string

const (
	// OutcomeSkipped: the key is not a numbered shard, or carries no job
	// id. Benign, never retried.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNoToken: no live token for the job — it already finished and
	// was cleaned up, or the job is unknown. Benign no-op.
	OutcomeNoToken Outcome = "no-token"
	// OutcomeIncomplete: shards are still missing (or the total is not
	// yet known); a later event re-runs the same check.
	OutcomeIncomplete Outcome = "incomplete"
	// OutcomeSignaled: this event completed the job; shards were merged
	// and the orchestrator was signaled.
	OutcomeSignaled Outcome = "signaled"
)

// Handler processes shard-arrival events. It keeps no per-event state:
// every invocation re-lists the job's shards, so out-of-order delivery,
// duplicates, and retries after partial failure are all safe.
type Handler struct {
	tokens   *tokens.Store
	detector *shards.Detector
	merger   *merge.Merger
	signaler *signal.Signaler
	log      *slog.Logger
}

// NewHandler wires the ingestion entry point.
func NewHandler(ts *tokens.Store, d *shards.Detector, m *merge.Merger, s *signal.Signaler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tokens: ts, detector: d, merger: m, signaler: s, log: logger}
}

// HandleEvent processes one notification. Errors returned here propagate
// to the event source's retry policy; skip/no-op outcomes return nil.
func (h *Handler) HandleEvent(ctx context.Context, ev storage.Event) (Outcome, error) {
	ref, err := shards.ParseKey(ev.Key)
	if errors.Is(err, shards.ErrNotShard) {
		// Probe and housekeeping objects; not even worth a log line.
		return OutcomeSkipped, nil
	}
	if errors.Is(err, shards.ErrNoJobID) {
		h.log.Warn("shard key has no job id, skipping", "key", ev.Key)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeSkipped, nil
	}

	tok, err := h.tokens.Get(ctx, ref.JobID)
	if errors.Is(err, tokens.ErrNotFound) {
		// Job already signaled and cleaned up, or never ours.
		h.log.Debug("no token for job, ignoring event", "job_id", ref.JobID, "key", ev.Key)
		return OutcomeNoToken, nil
	}
	if err != nil {
		return "", fmt.Errorf("token lookup for job %s failed: %w", ref.JobID, err)
	}

	snap, err := h.detector.Snapshot(ctx, ref.JobID)
	if err != nil {
		return "", err
	}
	if !snap.Complete(ref) {
		h.log.Debug("job incomplete",
			"job_id", ref.JobID, "trigger", ref.Seq, "present", len(snap.Refs), "total", snap.Total)
		return OutcomeIncomplete, nil
	}

	location, err := h.merger.Merge(ctx, ref.JobID, snap.Refs)
	if fault.KindOf(err) == fault.Processing {
		// Every shard failed to parse; retrying cannot help. Terminal for
		// the job: tell the orchestrator rather than leaving it to time
		// out.
		h.log.Error("merge failed", "job_id", ref.JobID, "error", err)
		if sigErr := h.signaler.Failure(ctx, tok, fault.CodeOf(err, "MergeFailed"), err); sigErr != nil {
			return "", sigErr
		}
		return OutcomeSignaled, nil
	}
	if err != nil {
		// Transient (storage read/write); propagate for the event
		// source's retry policy. No side effect has happened yet.
		return "", err
	}

	if err := h.signaler.Success(ctx, tok, location); err != nil {
		return "", err
	}
	h.log.Info("job complete", "job_id", ref.JobID, "shards", len(snap.Refs), "result", location)
	return OutcomeSignaled, nil
}
