// Package merge concatenates a job's shards into one canonical result.
// Merging recomputes from the full shard listing every time, so duplicate
// arrival events and re-merges are safe; each merge writes to a fresh
// location and never mutates a prior result.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/shards"
	"github.com/jackzampolin/collate/internal/storage"
)

// resultPrefix keeps merged results outside any job's shard prefix so
// result writes never look like shard arrivals.
const resultPrefix = "results"

// Result is the merged document: all shard blocks in ascending shard
// order, regardless of arrival order.
type Result struct {
	JobID  string         `json:"jobId"`
	Blocks []shards.Block `json:"blocks"`
}

// Text flattens the merged blocks into plain text for the content stages.
func (r *Result) Text() string {
	parts := make([]string, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n")
}

// Merger reads and concatenates shards into results.
type Merger struct {
	store storage.Store
	log   *slog.Logger
}

// NewMerger creates a merger over store.
func NewMerger(store storage.Store, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: store, log: logger}
}

// Merge reads every shard in refs (already in numeric order), drops the
// ones that fail to parse, and writes the concatenated result to a new
// job-keyed location, returning its reference. Partial merge is preferred
// to total failure; only a merge where every shard fails is an error.
func (m *Merger) Merge(ctx context.Context, jobID string, refs []shards.Ref) (string, error) {
	result := Result{JobID: jobID, Blocks: []shards.Block{}}
	parsed := 0
	for _, ref := range refs {
		data, err := m.store.Get(ctx, ref.Key)
		if err != nil {
			return "", fmt.Errorf("failed to read shard %s: %w", ref.Key, err)
		}
		p, err := shards.ParsePayload(data)
		if err != nil {
			m.log.Warn("dropping unparseable shard from merge",
				"job_id", jobID, "shard", ref.Seq, "error", err)
			continue
		}
		result.Blocks = append(result.Blocks, p.Blocks...)
		parsed++
	}

	if parsed == 0 && len(refs) > 0 {
		return "", fault.New(fault.Processing, "MergeEmpty",
			"no shard of %d parsed for job %s", len(refs), jobID)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode merged result: %w", err)
	}

	location := fmt.Sprintf("%s/%s/%s.json", resultPrefix, jobID, uuid.New().String())
	if err := m.store.Put(ctx, location, data, "application/json"); err != nil {
		return "", fmt.Errorf("failed to write merged result: %w", err)
	}
	m.log.Info("merged shards", "job_id", jobID, "shards", parsed, "blocks", len(result.Blocks), "location", location)
	return location, nil
}

// Load reads a merged result back from its reference.
func Load(ctx context.Context, store storage.Store, location string) (*Result, error) {
	data, err := store.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged result %q: %w", location, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fault.Wrap(fault.Processing, "ResultParse", err, "merged result %q is corrupt", location)
	}
	return &r, nil
}
