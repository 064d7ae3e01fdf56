package shards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackzampolin/collate/internal/storage"
)

// Detector decides, from the shards currently present and the total count
// declared on shard #1, whether a job is complete. Every arrival event
// re-lists and re-checks, so out-of-order delivery and duplicate events
// need no per-event state.
type Detector struct {
	store storage.Store
	log   *slog.Logger
}

// NewDetector creates a detector over store.
func NewDetector(store storage.Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, log: logger}
}

// Snapshot is the current shard picture for one job.
type Snapshot struct {
	// Refs holds the present numbered shards in ascending numeric order
	// (numeric, not lexicographic: 2 before 10).
	Refs []Ref
	// Total is shard #1's declared totalCount, or 0 when shard #1 is
	// absent or unparseable (unknown; no merge is attempted yet).
	Total int
}

// Snapshot lists the job's numbered shards and reads the declared total.
func (d *Detector) Snapshot(ctx context.Context, jobID string) (Snapshot, error) {
	keys, err := d.store.List(ctx, jobID+"/")
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list shards for job %s: %w", jobID, err)
	}

	var snap Snapshot
	for _, key := range keys {
		ref, err := ParseKey(key)
		if err != nil {
			// Non-shard objects under the prefix are not ours to judge.
			continue
		}
		if ref.JobID != jobID {
			continue
		}
		snap.Refs = append(snap.Refs, ref)
	}
	sort.Slice(snap.Refs, func(i, j int) bool { return snap.Refs[i].Seq < snap.Refs[j].Seq })

	snap.Total = d.totalCount(ctx, jobID, snap.Refs)
	return snap, nil
}

// Complete reports whether the triggering shard is the declared last one.
// An unknown total (0) never completes; a later event re-checks once shard
// #1 is readable.
func (s Snapshot) Complete(trigger Ref) bool {
	return s.Total > 0 && trigger.Seq == s.Total
}

func (d *Detector) totalCount(ctx context.Context, jobID string, refs []Ref) int {
	var first *Ref
	for i := range refs {
		if refs[i].Seq == 1 {
			first = &refs[i]
			break
		}
	}
	if first == nil {
		return 0
	}

	data, err := d.store.Get(ctx, first.Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.log.Warn("failed to read shard #1", "job_id", jobID, "error", err)
		}
		return 0
	}
	p, err := ParsePayload(data)
	if err != nil {
		d.log.Warn("shard #1 unparseable, total count unknown", "job_id", jobID, "error", err)
		return 0
	}
	return p.TotalCount
}
